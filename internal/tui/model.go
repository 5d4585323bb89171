// Package tui runs a hot-seat game of ito in the terminal. Everyone shares
// one screen and takes turns peeking at their own hand.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/ito/internal/game"
	"github.com/lox/ito/internal/service"
)

// Channel is the channel id used for local games.
const Channel = "local"

// Table describes a local game.
type Table struct {
	Names  []string
	Config game.Config
}

// Model is the bubbletea model for a hot-seat game.
type Model struct {
	ctx     context.Context
	svc     *service.GameService
	logger  *log.Logger
	players []game.Player
	names   map[string]string
	config  game.Config

	gameID   string
	round    int
	view     service.View
	reveal   *service.Reveal
	peek     *service.Hand
	selected int

	logViewport viewport.Model
	entries     []string
	help        help.Model
	keys        keyMap

	width    int
	height   int
	quitting bool
}

type resultMsg struct {
	actor string
	op    service.EventType
	res   service.Result
	err   error
}

type handMsg struct {
	hand service.Hand
	err  error
}

// NewModel seats the named players and deals the first game.
func NewModel(ctx context.Context, svc *service.GameService, logger *log.Logger, table Table) (*Model, error) {
	if len(table.Names) < game.MinPlayers {
		return nil, fmt.Errorf("need at least %d players, got %d", game.MinPlayers, len(table.Names))
	}

	m := &Model{
		ctx:         ctx,
		svc:         svc,
		logger:      logger.WithPrefix("tui"),
		names:       make(map[string]string, len(table.Names)),
		config:      table.Config,
		logViewport: viewport.New(60, 8),
		help:        help.New(),
		keys:        keys,
	}
	for i, name := range table.Names {
		p, err := svc.Identity(ctx, fmt.Sprintf("local-%d", i+1), name)
		if err != nil {
			return nil, err
		}
		m.players = append(m.players, p)
		m.names[p.ID] = p.Name
	}

	res, err := m.deal(ctx)
	if err != nil {
		return nil, err
	}
	m.apply(resultMsg{op: service.EventGameStarted, res: res})
	return m, nil
}

// Run starts the terminal program and blocks until the players quit.
func Run(ctx context.Context, svc *service.GameService, logger *log.Logger, table Table, opts ...tea.ProgramOption) error {
	m, err := NewModel(ctx, svc, logger, table)
	if err != nil {
		return err
	}
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// deal creates, fills and starts a game in the local channel.
func (m *Model) deal(ctx context.Context) (service.Result, error) {
	creator := m.players[0]
	created, err := m.svc.CreateGame(ctx, service.CreateParams{ChannelID: Channel, CreatorID: creator.ID, Config: m.config})
	if err != nil {
		return service.Result{}, err
	}
	for _, p := range m.players[1:] {
		if _, err := m.svc.JoinGame(ctx, created.Game.ID, p.ID); err != nil {
			return service.Result{}, err
		}
	}
	return m.svc.StartGame(ctx, created.Game.ID, creator.ID)
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages in the TUI
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.logViewport.Width = max(msg.Width-4, 10)
		m.logViewport.Height = max(msg.Height-lipgloss.Height(m.renderTable())-6, 3)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case resultMsg:
		m.apply(msg)
		return m, nil

	case handMsg:
		if msg.err != nil {
			m.addLog("Error: " + msg.err.Error())
			return m, nil
		}
		m.peek = &msg.hand
		return m, nil
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.selected = (m.selected - 1 + len(m.players)) % len(m.players)
		m.peek = nil

	case key.Matches(msg, m.keys.Down):
		m.selected = (m.selected + 1) % len(m.players)
		m.peek = nil

	case key.Matches(msg, m.keys.Propose):
		if m.over() {
			return nil
		}
		return m.propose(m.players[m.selected].ID)

	case key.Matches(msg, m.keys.Peek):
		if m.peek != nil {
			m.peek = nil
			return nil
		}
		return m.fetchHand(m.players[m.selected].ID)

	case key.Matches(msg, m.keys.Topic):
		if m.over() {
			return nil
		}
		return m.changeTopic()

	case key.Matches(msg, m.keys.Again):
		return m.again()
	}
	return nil
}

func (m *Model) over() bool {
	return m.view.Status.Terminal()
}

func (m *Model) propose(playerID string) tea.Cmd {
	ctx, svc, gameID := m.ctx, m.svc, m.gameID
	return func() tea.Msg {
		res, err := svc.ProposeCard(ctx, gameID, playerID)
		return resultMsg{actor: playerID, op: service.EventCardProposed, res: res, err: err}
	}
}

func (m *Model) changeTopic() tea.Cmd {
	ctx, svc, gameID, creator := m.ctx, m.svc, m.gameID, m.players[0].ID
	return func() tea.Msg {
		res, err := svc.ChangeTopic(ctx, gameID, creator)
		return resultMsg{actor: creator, op: service.EventTopicChanged, res: res, err: err}
	}
}

func (m *Model) fetchHand(playerID string) tea.Cmd {
	ctx, svc, gameID := m.ctx, m.svc, m.gameID
	return func() tea.Msg {
		hand, err := svc.Hand(ctx, gameID, playerID)
		return handMsg{hand: hand, err: err}
	}
}

func (m *Model) again() tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		res, err := m.deal(ctx)
		return resultMsg{op: service.EventGameStarted, res: res, err: err}
	}
}

// apply folds a committed result into the model and logs what happened.
func (m *Model) apply(msg resultMsg) {
	if msg.err != nil {
		m.logger.Debug("Operation failed", "op", msg.op, "error", msg.err)
		m.addLog("Error: " + msg.err.Error())
		return
	}
	res := msg.res
	m.view = res.View
	m.peek = nil

	switch msg.op {
	case service.EventGameStarted:
		m.gameID = res.Game.ID
		m.round++
		m.reveal = nil
		m.keys.Again.SetEnabled(false)
		m.addLog(fmt.Sprintf("Round %d dealt: %d cards each, %d lives.", m.round, res.Game.Config.CardCount, res.Game.Config.HP))
		m.logTopic()

	case service.EventTopicChanged:
		m.logTopic()

	case service.EventCardProposed:
		m.logProposal(res.Resolution)
	}

	if res.Reveal != nil {
		m.reveal = res.Reveal
		m.keys.Again.SetEnabled(true)
		m.addLog(outcomeLine(res.Game))
	}
}

func (m *Model) logTopic() {
	if t := m.view.Topic; t != nil {
		m.addLog(fmt.Sprintf("Topic: %s (%s)", t.Title, t.Description))
	}
}

func (m *Model) logProposal(r *game.Resolution) {
	if r == nil {
		return
	}
	name := m.names[r.Card.PlayerID]
	if r.Correct {
		m.addLog(fmt.Sprintf("%s played %d. Correct!", name, r.Card.Number))
		return
	}
	line := fmt.Sprintf("%s played %d, but %d was lower.", name, r.Card.Number, r.Expected)
	if len(r.Cascaded) > 0 {
		discarded := make([]string, 0, len(r.Cascaded))
		for _, c := range r.Cascaded {
			discarded = append(discarded, fmt.Sprintf("%d (%s)", c.Number, m.names[c.PlayerID]))
		}
		line += " Discarded " + strings.Join(discarded, ", ") + "."
	}
	m.addLog(line)
}

func outcomeLine(g game.Game) string {
	switch {
	case g.Outcome == game.OutcomeWin:
		return fmt.Sprintf("You won with %d of %d lives lost!", g.FailureCount, g.Config.HP)
	case g.Outcome == game.OutcomeLoss:
		return fmt.Sprintf("You lost after %d failures.", g.FailureCount)
	case g.Status == game.StatusCancelled:
		return "Game cancelled."
	}
	return "Game over."
}

func (m *Model) addLog(line string) {
	m.entries = append(m.entries, line)
	m.logViewport.SetContent(strings.Join(m.entries, "\n"))
	m.logViewport.GotoBottom()
}

// View renders the TUI
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTable(),
		PaneStyle.Render(m.logViewport.View()),
		m.help.View(m.keys),
	)
}

func (m *Model) renderTable() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("ito · round %d", m.round)))
	b.WriteString("\n")
	if t := m.view.Topic; t != nil {
		b.WriteString(TopicStyle.Render(fmt.Sprintf("%s: %s", t.Title, t.Description)))
		b.WriteString("\n")
	}

	lives := strings.Repeat("♥", max(m.view.LivesLeft, 0)) + strings.Repeat("♡", m.view.HP-max(m.view.LivesLeft, 0))
	fmt.Fprintf(&b, "Lives: %s  Failures: %d/%d  Range: %d-%d\n",
		LifeStyle.Render(lives), m.view.FailureCount, m.view.HP, m.view.Config.MinNumber, m.view.Config.MaxNumber)

	b.WriteString("Table: ")
	if len(m.view.RevealedBy) == 0 {
		b.WriteString(InfoStyle.Render("nothing yet"))
	}
	for i, c := range m.view.RevealedBy {
		if i > 0 {
			b.WriteString(" ")
		}
		if c.Cascaded {
			b.WriteString(CascadedStyle.Render(fmt.Sprint(c.Number)))
		} else {
			b.WriteString(RevealedStyle.Render(fmt.Sprint(c.Number)))
		}
	}
	b.WriteString("\n\n")

	counts := make(map[string]int, len(m.view.Members))
	for _, member := range m.view.Members {
		counts[member.PlayerID] = member.ActiveCards
	}
	for i, p := range m.players {
		line := fmt.Sprintf("  %s: %d cards", p.Name, counts[p.ID])
		if i == m.selected {
			line = SelectedStyle.Render(fmt.Sprintf("› %s: %d cards", p.Name, counts[p.ID]))
		} else {
			line = PlayerInfoStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.peek != nil {
		fmt.Fprintf(&b, "\n%s holds %s\n", m.names[m.peek.PlayerID], WarningStyle.Render(formatNumbers(m.peek.Held)))
	}

	if m.reveal != nil {
		b.WriteString("\n")
		b.WriteString(m.renderReveal())
	}
	return b.String()
}

func (m *Model) renderReveal() string {
	var b strings.Builder
	if m.view.Outcome == game.OutcomeWin {
		b.WriteString(SuccessStyle.Render("All cards laid down in order!"))
	} else {
		b.WriteString(ErrorStyle.Render("The table ran out of luck."))
	}
	b.WriteString("\n")
	for _, p := range m.reveal.Players {
		fmt.Fprintf(&b, "  %s played %s", p.Name, formatNumbers(p.Played))
		if len(p.Discarded) > 0 {
			fmt.Fprintf(&b, ", lost %s", formatNumbers(p.Discarded))
		}
		if len(p.Held) > 0 {
			fmt.Fprintf(&b, ", still held %s", formatNumbers(p.Held))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatNumbers(ns []int) string {
	if len(ns) == 0 {
		return "nothing"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, " ")
}
