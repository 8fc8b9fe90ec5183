package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/thraizz/oath-server-go/internal/game"
)

// Broker fans engine notifications out to per-game subscribers. Slow
// subscribers lose notifications rather than stall the engine.
type Broker struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan game.Notification
}

func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{logger: logger, subs: make(map[string]map[int]chan game.Notification)}
}

// Publish is a game.NotificationHandler.
func (b *Broker) Publish(n game.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs[n.GameID] {
		select {
		case ch <- n:
		default:
			b.logger.Warn("dropping notification for slow subscriber",
				zap.String("game_id", n.GameID),
				zap.Int("subscriber", id),
				zap.String("type", n.Type))
		}
	}
}

// Subscribe returns a channel of the game's notifications and a func that
// closes it.
func (b *Broker) Subscribe(gameID string, buffer int) (<-chan game.Notification, func()) {
	ch := make(chan game.Notification, buffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[int]chan game.Notification)
	}
	b.subs[gameID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[gameID], id)
			if len(b.subs[gameID]) == 0 {
				delete(b.subs, gameID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports how many subscribers a game has.
func (b *Broker) Subscribers(gameID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[gameID])
}
