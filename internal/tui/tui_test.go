package tui

import (
	"context"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/randutil"
	"github.com/lox/ito/internal/service"
	"github.com/lox/ito/internal/store/memory"
	"github.com/lox/ito/internal/topic"
)

func newTestModel(t *testing.T, deal ...int) *Model {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	svc := service.New(memory.New(), topic.Builtin(randutil.New(3)), logger,
		service.WithAllocator(func(_ *rand.Rand, _, _, count int) ([]int, error) {
			return deal[:count], nil
		}),
	)
	m, err := NewModel(context.Background(), svc, logger, Table{
		Names:  []string{"Ann", "Ben"},
		Config: game.Config{MinNumber: 1, MaxNumber: 10, CardCount: 2, HP: 2},
	})
	require.NoError(t, err)
	return m
}

// send runs msg through Update and executes every resulting command.
func send(m *Model, msg tea.Msg) {
	_, cmd := m.Update(msg)
	for cmd != nil {
		next := cmd()
		if next == nil {
			return
		}
		_, cmd = m.Update(next)
	}
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModelDealsFirstRound(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, 2, 7, 4, 9)

	assert.Equal(t, 1, m.round)
	assert.Equal(t, game.StatusPlaying, m.view.Status)
	require.NotNil(t, m.view.Topic)
	out := m.View()
	assert.Contains(t, out, "Ann: 2 cards")
	assert.Contains(t, out, "Ben: 2 cards")
	assert.Contains(t, out, "Table: nothing yet")
	assert.Contains(t, m.entries[0], "Round 1 dealt")
}

func TestNewModelNeedsPlayers(t *testing.T) {
	t.Parallel()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	svc := service.New(memory.New(), topic.Builtin(randutil.New(1)), logger)
	_, err := NewModel(context.Background(), svc, logger, Table{Names: []string{"Solo"}})
	require.Error(t, err)
}

func TestPeekShowsSelectedHand(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, 2, 7, 4, 9)

	send(m, keyPress("down"))
	send(m, keyPress("h"))
	require.NotNil(t, m.peek)
	assert.Equal(t, []int{4, 9}, m.peek.Held)
	assert.Contains(t, m.View(), "Ben holds 4 9")

	send(m, keyPress("h"))
	assert.Nil(t, m.peek)
	assert.NotContains(t, m.View(), "holds")
}

func TestPlayWinningRound(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, 2, 7, 4, 9)

	send(m, keyPress("enter")) // Ann 2
	send(m, keyPress("j"))
	send(m, keyPress("enter")) // Ben 4
	send(m, keyPress("k"))
	send(m, keyPress("enter")) // Ann 7
	assert.Contains(t, m.View(), "Table: 2 4 7")
	send(m, keyPress("down"))
	send(m, keyPress("p")) // Ben 9

	assert.Equal(t, game.OutcomeWin, m.view.Outcome)
	require.NotNil(t, m.reveal)
	assert.Contains(t, m.entries[len(m.entries)-1], "You won")
	assert.Contains(t, m.View(), "Ann played 2 7")

	// The finished game ignores further proposals.
	send(m, keyPress("enter"))
	assert.Equal(t, game.OutcomeWin, m.view.Outcome)

	send(m, keyPress("n"))
	assert.Equal(t, 2, m.round)
	assert.Equal(t, game.StatusPlaying, m.view.Status)
	assert.Nil(t, m.reveal)
}

func TestWrongProposalLogsCascade(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, 2, 7, 4, 9)

	send(m, keyPress("down"))
	send(m, keyPress("enter")) // Ben 4 while Ann holds 2

	assert.Equal(t, 1, m.view.FailureCount)
	last := m.entries[len(m.entries)-1]
	assert.Contains(t, last, "Ben played 4, but 2 was lower.")
	assert.Contains(t, last, "Discarded 2 (Ann)")
	assert.Contains(t, m.View(), "Failures: 1/2")
}

func TestChangeTopicAndQuit(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, 2, 7, 4, 9)
	before := len(m.entries)

	send(m, keyPress("t"))
	require.Len(t, m.entries, before+1)
	assert.True(t, strings.HasPrefix(m.entries[before], "Topic: "))

	_, cmd := m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}
