package topic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/ito/internal/randutil"
)

func TestBuiltinCatalog(t *testing.T) {
	t.Parallel()
	c := Builtin(randutil.New(1))
	list := c.List()
	require.NotEmpty(t, list)
	for _, e := range list {
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.Title)
		assert.Equal(t, "unpopular - popular", e.Description)
	}
	assert.NotEmpty(t, c.ByCategory("food"))
}

func TestRandomTopicCoversCatalog(t *testing.T) {
	t.Parallel()
	c := NewCatalog([]Entry{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C", Disabled: true},
	}, randutil.New(42))

	seen := map[string]int{}
	for range 200 {
		got, err := c.RandomTopic(context.Background())
		require.NoError(t, err)
		seen[got.ID]++
	}
	assert.Len(t, seen, 2)
	assert.Zero(t, seen["c"])
}

func TestRandomTopicEmpty(t *testing.T) {
	t.Parallel()
	c := NewCatalog(nil, randutil.New(1))
	_, err := c.RandomTopic(context.Background())
	require.ErrorIs(t, err, ErrNoTopics)

	c.Add(Entry{ID: "x", Title: "X"})
	got, err := c.RandomTopic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "X", got.Title)

	require.True(t, c.SetDisabled("x", true))
	_, err = c.RandomTopic(context.Background())
	require.ErrorIs(t, err, ErrNoTopics)
	assert.False(t, c.SetDisabled("missing", true))
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "topics.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
topic "spicy" {
  title       = "Spicy food"
  description = "mild - burning"
  category    = "food"
}

topic "scary" {
  title    = "Scary things"
  disabled = true
}
`), 0o600))

	c, err := LoadFile(path, randutil.New(3))
	require.NoError(t, err)
	list := c.List()
	require.Len(t, list, 1)
	assert.Equal(t, Entry{ID: "spicy", Title: "Spicy food", Description: "mild - burning", Category: "food"}, list[0])
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"syntax":        `topic "a" {`,
		"missing title": `topic "a" { category = "x" }`,
		"duplicate":     "topic \"a\" { title = \"A\" }\ntopic \"a\" { title = \"B\" }",
		"unknown field": "topic \"a\" {\n  title  = \"A\"\n  colour = \"red\"\n}",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "test.hcl")
			assert.Error(t, err)
		})
	}
}
