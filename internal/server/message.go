package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/service"
)

// Message is the JSON envelope for every websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no data")
	}
	return json.Unmarshal(m.Data, v)
}

// Client → Server Messages

type HelloData struct {
	// PlayerID is the caller's external identity, e.g. a chat user id.
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type CreateGameData struct {
	ChannelID string      `json:"channelId"`
	Config    game.Config `json:"config"`
}

// GameRefData carries the target of every per-game command.
type GameRefData struct {
	GameID string `json:"gameId"`
}

// Server → Client Messages

type WelcomeData struct {
	PlayerID string      `json:"playerId"`
	Name     string      `json:"name"`
	Defaults game.Config `json:"defaults"`
}

type CardProposedData struct {
	GameID       string `json:"gameId"`
	PlayerID     string `json:"playerId"`
	Number       int    `json:"number"`
	Correct      bool   `json:"correct"`
	Expected     int    `json:"expected"`
	Cascaded     []int  `json:"cascaded"`
	Revealed     []int  `json:"revealed"`
	FailureCount int    `json:"failureCount"`
}

type GameEndedData struct {
	GameID       string         `json:"gameId"`
	Status       game.Status    `json:"status"`
	Outcome      game.Outcome   `json:"outcome"`
	Revealed     []int          `json:"revealed"`
	FailureCount int            `json:"failureCount"`
	Reveal       service.Reveal `json:"reveal"`
}

type GameDeletedData struct {
	GameID string `json:"gameId"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func cardProposedFromResult(res service.Result) CardProposedData {
	r := res.Resolution
	cascaded := make([]int, 0, len(r.Cascaded))
	for _, c := range r.Cascaded {
		cascaded = append(cascaded, c.Number)
	}
	return CardProposedData{
		GameID:       res.Game.ID,
		PlayerID:     r.Card.PlayerID,
		Number:       r.Card.Number,
		Correct:      r.Correct,
		Expected:     r.Expected,
		Cascaded:     cascaded,
		Revealed:     res.View.Revealed,
		FailureCount: r.FailureCount,
	}
}

func gameEndedFromResult(res service.Result) GameEndedData {
	d := GameEndedData{
		GameID:       res.Game.ID,
		Status:       res.Game.Status,
		Outcome:      res.Game.Outcome,
		Revealed:     res.View.Revealed,
		FailureCount: res.Game.FailureCount,
	}
	if res.Reveal != nil {
		d.Reveal = *res.Reveal
	}
	return d
}
