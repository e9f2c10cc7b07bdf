package migrations

import (
	"io/fs"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_AreGooseAnnotated(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		data, err := fs.ReadFile(FS, f)
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", f)
		assert.Contains(t, string(data), "-- +goose Down", f)
	}
}

// User-supplied names have no length limit, so the column must not have one.
func TestAssetsSchema_OriginalNameUnbounded(t *testing.T) {
	data, err := fs.ReadFile(FS, "00001_create_assets.sql")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`(?m)^\s*original_name TEXT NOT NULL,`), string(data))
}
