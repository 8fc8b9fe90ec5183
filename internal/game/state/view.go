package state

// View is read access to the game graph. Reads return copies; mutating a
// returned value never changes the view.
type View interface {
	Entity(key Key) (Entity, bool)
	// Keys lists every entity key in arena order.
	Keys() []Key
	Turn() Turn
	Campaign(key Key) (Campaign, bool)
	// LayoutVersion changes whenever the set of in-play entities, their
	// owners, locations or powers change. Zero means "unknown, do not cache".
	LayoutVersion() uint64
}

// Writer is the mutable handle given to effects. Nothing else obtains one.
type Writer interface {
	View
	// Mutable returns the staged copy of an entity for modification.
	Mutable(key Key) (*Entity, error)
	SetTurn(turn Turn)
	MutableCampaign(key Key) (*Campaign, error)
	PutCampaign(c Campaign)
	DeleteCampaign(key Key)
	// NextKey allocates a fresh arena key with the given prefix.
	NextKey(prefix string) Key
}

// All returns every entity of the view in arena order.
func All(v View) []Entity {
	keys := v.Keys()
	out := make([]Entity, 0, len(keys))
	for _, key := range keys {
		if e, ok := v.Entity(key); ok {
			out = append(out, e)
		}
	}
	return out
}

// InPlay returns the entities currently in play, in arena order.
func InPlay(v View) []Entity {
	var out []Entity
	for _, e := range All(v) {
		if e.InPlay {
			out = append(out, e)
		}
	}
	return out
}

// OfKind returns in-play entities of one kind.
func OfKind(v View, kind Kind) []Entity {
	var out []Entity
	for _, e := range InPlay(v) {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Players returns the players in turn order.
func Players(v View) []Entity {
	order := v.Turn().Order
	out := make([]Entity, 0, len(order))
	for _, key := range order {
		if e, ok := v.Entity(key); ok {
			out = append(out, e)
		}
	}
	return out
}

// SiteOf resolves the site an entity is at. Sites are at themselves; a card
// held by a player is wherever that player's pawn is.
func SiteOf(v View, key Key) Key {
	for range 4 {
		e, ok := v.Entity(key)
		if !ok {
			return ""
		}
		if e.Kind == KindSite {
			return e.Key
		}
		if e.Location == "" {
			return ""
		}
		key = e.Location
	}
	return ""
}

// WarbandsOf counts warbands of color on one entity.
func WarbandsOf(v View, key Key, color string) int {
	e, ok := v.Entity(key)
	if !ok {
		return 0
	}
	return e.Warbands.Get(color)
}

// TotalWarbands counts warbands of color across several entities.
func TotalWarbands(v View, keys []Key, color string) int {
	total := 0
	for _, key := range keys {
		total += WarbandsOf(v, key, color)
	}
	return total
}

// Name returns an entity's display name, or its key when unknown.
func Name(v View, key Key) string {
	if e, ok := v.Entity(key); ok && e.Name != "" {
		return e.Name
	}
	return string(key)
}
