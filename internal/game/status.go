package game

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPlaying   Status = "playing"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Active reports whether the game still occupies its channel.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusPlaying
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusPlaying, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Outcome records how a game ended.
type Outcome string

const (
	OutcomeNone Outcome = ""
	// OutcomeWin means every card was played in order before hp ran out.
	OutcomeWin Outcome = "win"
	// OutcomeLoss means hp ran out, or a failure emptied the table.
	OutcomeLoss Outcome = "loss"
	// OutcomeAbandoned means the creator force-ended a running game.
	OutcomeAbandoned Outcome = "abandoned"
)

func (o Outcome) String() string {
	if o == OutcomeNone {
		return "none"
	}
	return string(o)
}
