package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/hostpulse/internal/models"
)

func TestSpoolRoundTripInOrder(t *testing.T) {
	s, err := NewSpool(filepath.Join(t.TempDir(), "spool"), 10, nil)
	require.NoError(t, err)

	require.NoError(t, s.Store([]*models.MachineReport{report(300), report(100)}))
	require.NoError(t, s.Store([]*models.MachineReport{report(200)}))
	assert.Equal(t, 3, s.Count())

	got, err := s.Drain()
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, timestamps(got))
	assert.Zero(t, s.Count())
}

func TestSpoolDropsOldestBeyondLimit(t *testing.T) {
	s, err := NewSpool(t.TempDir(), 2, nil)
	require.NoError(t, err)

	require.NoError(t, s.Store([]*models.MachineReport{report(1), report(2), report(3)}))

	got, err := s.Drain()
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, timestamps(got))
}

func TestSpoolRemovesCorruptedFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSpool(dir, 10, nil)
	require.NoError(t, err)

	require.NoError(t, s.Store([]*models.MachineReport{report(5)}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000000000000000001-0000.json"), []byte("{truncated"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o640))

	got, err := s.Drain()
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, timestamps(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name())
}
