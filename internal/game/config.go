package game

import "math"

// MinPlayers is the smallest table that can start.
const MinPlayers = 2

// Limits on a game config. They keep deals small enough to run inside a
// store transaction.
const (
	NumberLimit  = 1_000_000 // |MinNumber| and |MaxNumber|
	MaxCardCount = 100
	MaxHP        = 1000
)

// Config is fixed when a game is created.
type Config struct {
	MinNumber int `json:"minNumber" hcl:"min_number,optional"`
	MaxNumber int `json:"maxNumber" hcl:"max_number,optional"`
	CardCount int `json:"cardCount" hcl:"card_count,optional"`
	HP        int `json:"hp" hcl:"hp,optional"`
}

// DefaultConfig matches the defaults of the /ito command: numbers 1-100, one
// card each and five lives.
func DefaultConfig() Config {
	return Config{MinNumber: 1, MaxNumber: 100, CardCount: 1, HP: 5}
}

// WithDefaults fills zero fields from defaults. A zero range is only
// replaced as a whole, so {MinNumber: 0, MaxNumber: 50} stays as given.
func (c Config) WithDefaults(defaults Config) Config {
	if c.MinNumber == 0 && c.MaxNumber == 0 {
		c.MinNumber = defaults.MinNumber
		c.MaxNumber = defaults.MaxNumber
	}
	if c.CardCount == 0 {
		c.CardCount = defaults.CardCount
	}
	if c.HP == 0 {
		c.HP = defaults.HP
	}
	return c
}

// Validate checks the creation-time constraints.
func (c Config) Validate() error {
	if c.MinNumber < -NumberLimit || c.MaxNumber > NumberLimit {
		return Errorf(CodeInvalidConfig, "numbers must lie within %d to %d", -NumberLimit, NumberLimit)
	}
	if c.MinNumber >= c.MaxNumber {
		return Errorf(CodeInvalidConfig, "min number %d must be below max number %d", c.MinNumber, c.MaxNumber)
	}
	if c.CardCount < 1 || c.CardCount > MaxCardCount {
		return Errorf(CodeInvalidConfig, "card count must be between 1 and %d, got %d", MaxCardCount, c.CardCount)
	}
	if c.HP < 1 || c.HP > MaxHP {
		return Errorf(CodeInvalidConfig, "hp must be between 1 and %d, got %d", MaxHP, c.HP)
	}
	return nil
}

// Capacity is the number of distinct numbers in the range, saturating at
// math.MaxInt.
func (c Config) Capacity() int {
	if c.MaxNumber < c.MinNumber {
		return 0
	}
	span := uint64(c.MaxNumber) - uint64(c.MinNumber)
	if span >= math.MaxInt {
		return math.MaxInt
	}
	return int(span) + 1
}

// CardsNeeded is the size of a deal for the given table, saturating at
// math.MaxInt.
func (c Config) CardsNeeded(players int) int {
	if players <= 0 || c.CardCount <= 0 {
		return 0
	}
	if c.CardCount > math.MaxInt/players {
		return math.MaxInt
	}
	return players * c.CardCount
}

// CheckStart reports whether a table of this size can be dealt.
func (c Config) CheckStart(players int) error {
	if players < MinPlayers {
		return Errorf(CodeInsufficientPlayers, "need at least %d players, have %d", MinPlayers, players)
	}
	if c.CardCount < 1 {
		return Errorf(CodeInvalidConfig, "card count must be at least 1, got %d", c.CardCount)
	}
	if need := c.CardsNeeded(players); need > c.Capacity() {
		return Errorf(CodeCapacityExceeded, "need %d cards but %d-%d holds %d numbers",
			need, c.MinNumber, c.MaxNumber, c.Capacity())
	}
	return nil
}
