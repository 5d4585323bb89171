package service

import (
	"context"
)

// EventType names what happened to a game.
type EventType string

const (
	EventGameCreated  EventType = "game_created"
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventGameStarted  EventType = "game_started"
	EventCardProposed EventType = "card_proposed"
	EventTopicChanged EventType = "topic_changed"
	EventGameEnded    EventType = "game_ended"
	EventGameDeleted  EventType = "game_deleted"
)

// Event is delivered to observers after a change commits.
type Event struct {
	Type    EventType
	GameID  string
	ActorID string
	Result  Result
}

// Observer is a presentation gateway interested in game changes. OnEvent is
// called synchronously after commit and must not block.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// Subscribe registers an observer for every later change.
func (s *GameService) Subscribe(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *GameService) notify(ctx context.Context, event Event) {
	s.observersMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.observersMu.RUnlock()

	s.logger.Debug("Dispatching event", "type", event.Type, "game", event.GameID, "observers", len(observers))
	for _, o := range observers {
		o.OnEvent(ctx, event)
	}
}

// BindMessage remembers which presentation message shows a game, so a
// gateway can edit it in place. Bindings are dropped when the game ends.
func (s *GameService) BindMessage(gameID, messageID string) {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()
	s.bindings[gameID] = messageID
}

// MessageBinding returns the message bound to a game.
func (s *GameService) MessageBinding(gameID string) (string, bool) {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()
	id, ok := s.bindings[gameID]
	return id, ok
}

func (s *GameService) dropBinding(gameID string) {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()
	delete(s.bindings, gameID)
}
