package state

// Mask is the proxy manager: a sparse overlay of speculative copies on top
// of a base view. Proxy returns the same copy for a key every time, created
// from the base on first access. Because entities refer to each other by
// key, reading a proxy's Owner or Location through the mask lands on the
// proxies of those entities too. Nothing written to a mask ever reaches
// its base.
type Mask struct {
	base      View
	proxies   map[Key]*Entity
	campaigns map[Key]*Campaign
}

var _ View = (*Mask)(nil)

// NewMask creates an empty mask over base.
func NewMask(base View) *Mask {
	return &Mask{
		base:      base,
		proxies:   make(map[Key]*Entity),
		campaigns: make(map[Key]*Campaign),
	}
}

// Proxy returns the memoised speculative copy of an entity.
func (m *Mask) Proxy(key Key) (*Entity, bool) {
	if p, ok := m.proxies[key]; ok {
		return p, true
	}
	original, ok := m.base.Entity(key)
	if !ok {
		return nil, false
	}
	p := original.Clone()
	m.proxies[key] = p
	return p, true
}

// ProxyCampaign returns the memoised speculative copy of a campaign record.
func (m *Mask) ProxyCampaign(key Key) (*Campaign, bool) {
	if c, ok := m.campaigns[key]; ok {
		return c, true
	}
	original, ok := m.base.Campaign(key)
	if !ok {
		return nil, false
	}
	c := original.clone()
	m.campaigns[key] = c
	return c, true
}

func (m *Mask) Entity(key Key) (Entity, bool) {
	if p, ok := m.proxies[key]; ok {
		return *p.Clone(), true
	}
	return m.base.Entity(key)
}

func (m *Mask) Keys() []Key {
	return m.base.Keys()
}

func (m *Mask) Turn() Turn {
	return m.base.Turn()
}

func (m *Mask) Campaign(key Key) (Campaign, bool) {
	if c, ok := m.campaigns[key]; ok {
		return *c.clone(), true
	}
	return m.base.Campaign(key)
}

// LayoutVersion is zero once any proxy exists, since proxies may have moved.
func (m *Mask) LayoutVersion() uint64 {
	if len(m.proxies) > 0 {
		return 0
	}
	return m.base.LayoutVersion()
}

// Len returns the number of proxies created.
func (m *Mask) Len() int {
	return len(m.proxies)
}

// Fork returns a fresh mask over this one, so a caller can speculate on top
// of speculation without disturbing it.
func (m *Mask) Fork() *Mask {
	return NewMask(m)
}
