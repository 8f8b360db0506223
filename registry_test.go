package txnfs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotentPerDirectory(t *testing.T) {
	dir := t.TempDir()
	a, err := Init(dir, false)
	require.NoError(t, err)
	b, err := Init(dir, false)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestInitCreatesMissingDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/missing"
	fs, err := Init(dir, false)
	require.NoError(t, err)
	assert.Equal(t, dir, fs.Directory())
}
