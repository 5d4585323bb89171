package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/store/memory"
)

func TestOperationsAreTraced(t *testing.T) {
	t.Parallel()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	h := newHarness(t, memory.New(), WithTracerProvider(tp))
	ctx := context.Background()

	created, err := h.svc.CreateGame(ctx, CreateParams{ChannelID: "chan", CreatorID: h.alice.ID})
	require.NoError(t, err)
	_, err = h.svc.StartGame(ctx, created.Game.ID, h.alice.ID)
	require.ErrorIs(t, err, game.ErrInsufficientPlayers)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range recorder.Ended() {
		spans[s.Name()] = s
	}
	require.Contains(t, spans, "ito.create_game")
	require.Contains(t, spans, "ito.game_started")

	failed := spans["ito.game_started"]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Contains(t, failed.Attributes(), attribute.String("ito.error_code", string(game.CodeInsufficientPlayers)))
	assert.Contains(t, failed.Attributes(), attribute.String("ito.game_id", created.Game.ID))
}
