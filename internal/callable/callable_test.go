package callable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegions_MergeAndQuery(t *testing.T) {
	r := NewRegions()
	r.Add("22", 100, 200)
	r.Add("22", 201, 250) // adjacent, merges with the previous
	r.Add("22", 400, 500)
	r.Build()

	assert.True(t, r.Callable("22", 100, 100))
	assert.True(t, r.Callable("22", 150, 250))
	assert.True(t, r.Callable("22", 199, 210), "span across merged boundary")
	assert.False(t, r.Callable("22", 250, 260))
	assert.False(t, r.Callable("22", 300, 300))
	assert.True(t, r.Callable("22", 400, 500))
	assert.False(t, r.Callable("22", 399, 401))
	assert.False(t, r.Callable("21", 150, 150), "unknown chromosome")
}

func TestLoadBED(t *testing.T) {
	content := "track name=callable\n" +
		"22\t99\t200\n" +
		"22\t399\t500\tregion2\n" +
		"X\t0\t10\n"
	path := filepath.Join(t.TempDir(), "callable.bed")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := LoadBED(path)
	require.NoError(t, err)

	// BED 99-200 half-open is 100-200 1-based inclusive
	assert.True(t, r.Callable("22", 100, 200))
	assert.False(t, r.Callable("22", 99, 100))
	assert.True(t, r.Callable("X", 1, 10))
	assert.False(t, r.Callable("X", 10, 11))
}

func TestLoadBED_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bed")
	require.NoError(t, os.WriteFile(path, []byte("22\tnope\t100\n"), 0o644))
	_, err := LoadBED(path)
	assert.Error(t, err)
}
