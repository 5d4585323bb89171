package simulator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport(t *testing.T) {
	t.Parallel()
	sim := New(Config{Games: 4, Players: 2, Seed: 9})
	stats, err := sim.Run(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReport(path, stats, sim.Config()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 4, report.Games)
	assert.Equal(t, 2, report.Players)
	assert.Equal(t, int64(9), report.Seed)
	assert.Equal(t, 4, report.Wins)
	assert.InDelta(t, 1.0, report.WinRate, 1e-9)
	assert.Equal(t, sim.Config().Game, report.Config)
}
