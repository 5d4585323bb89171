// Package topic supplies the themes players rank their numbers against.
package topic

import (
	"cmp"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/ito/internal/game"
)

// ErrNoTopics is returned when the catalog has no active topic.
var ErrNoTopics = errors.New("no topics available")

// Provider hands out topics to games.
type Provider interface {
	RandomTopic(ctx context.Context) (game.Topic, error)
}

// Entry is one catalog topic.
type Entry struct {
	ID          string `hcl:"id,label"`
	Title       string `hcl:"title"`
	Description string `hcl:"description,optional"`
	Category    string `hcl:"category,optional"`
	Disabled    bool   `hcl:"disabled,optional"`
}

// Topic converts the entry for a game.
func (e Entry) Topic() game.Topic {
	return game.Topic{ID: e.ID, Title: e.Title, Description: e.Description}
}

type file struct {
	Topics []Entry `hcl:"topic,block"`
}

//go:embed builtin.hcl
var builtinHCL []byte

// Catalog is an in-memory Provider. It is safe for concurrent use.
type Catalog struct {
	mu      sync.Mutex
	entries []Entry
	rng     *rand.Rand
}

// NewCatalog builds a catalog from entries. A nil rng uses a random seed.
func NewCatalog(entries []Entry, rng *rand.Rand) *Catalog {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Catalog{entries: slices.Clone(entries), rng: rng}
}

// Builtin returns the catalog shipped with the binary.
func Builtin(rng *rand.Rand) *Catalog {
	entries, err := Parse(builtinHCL, "builtin.hcl")
	if err != nil {
		panic(fmt.Sprintf("builtin topics: %v", err))
	}
	return NewCatalog(entries, rng)
}

// LoadFile parses an HCL file of topic blocks.
func LoadFile(filename string, rng *rand.Rand) (*Catalog, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read topics: %w", err)
	}
	entries, err := Parse(src, filename)
	if err != nil {
		return nil, err
	}
	return NewCatalog(entries, rng), nil
}

// Parse decodes topic blocks from HCL source.
func Parse(src []byte, filename string) ([]Entry, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}
	var decoded file
	if diags := gohcl.DecodeBody(f.Body, nil, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	seen := make(map[string]bool, len(decoded.Topics))
	for _, e := range decoded.Topics {
		if e.Title == "" {
			return nil, fmt.Errorf("topic %q: title is required", e.ID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("topic %q defined twice", e.ID)
		}
		seen[e.ID] = true
	}
	return decoded.Topics, nil
}

// RandomTopic picks uniformly among active topics.
func (c *Catalog) RandomTopic(ctx context.Context) (game.Topic, error) {
	if err := ctx.Err(); err != nil {
		return game.Topic{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	active := c.activeLocked()
	if len(active) == 0 {
		return game.Topic{}, ErrNoTopics
	}
	return active[c.rng.IntN(len(active))].Topic(), nil
}

// Add appends or replaces a topic by id.
func (c *Catalog) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.IndexFunc(c.entries, func(x Entry) bool { return x.ID == e.ID }); i >= 0 {
		c.entries[i] = e
		return
	}
	c.entries = append(c.entries, e)
}

// SetDisabled toggles a topic. It reports whether the id exists.
func (c *Catalog) SetDisabled(id string, disabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries[i].Disabled = disabled
			return true
		}
	}
	return false
}

// List returns active topics ordered by category then title.
func (c *Catalog) List() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.activeLocked()
	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Title, b.Title))
	})
	return out
}

// ByCategory returns active topics in category, ordered by title.
func (c *Catalog) ByCategory(category string) []Entry {
	var out []Entry
	for _, e := range c.List() {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) activeLocked() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if !e.Disabled {
			out = append(out, e)
		}
	}
	return out
}

var _ Provider = (*Catalog)(nil)
