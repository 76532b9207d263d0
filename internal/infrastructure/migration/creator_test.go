package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMigration(t *testing.T) {
	t.Run("writes an up and down pair", func(t *testing.T) {
		dir := t.TempDir()

		mf, err := CreateMigration(dir, "add payment indexes", "dedup gates")
		require.NoError(t, err)

		assert.Len(t, mf.Version, 14)
		assert.True(t, strings.HasSuffix(mf.UpPath, "_add_payment_indexes.up.sql"))
		assert.True(t, strings.HasSuffix(mf.DownPath, "_add_payment_indexes.down.sql"))

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "add payment indexes")
		assert.Contains(t, string(up), "dedup gates")

		_, err = os.Stat(mf.DownPath)
		require.NoError(t, err)
	})

	t.Run("creates the directory when missing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "migrations")

		_, err := CreateMigration(dir, "init", "")
		require.NoError(t, err)
	})
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "add_payment_indexes", sanitizeName("Add Payment  Indexes"))
	assert.Equal(t, "v2_schema", sanitizeName("v2 - schema!"))
	assert.Equal(t, "trailing", sanitizeName("trailing---"))
}

func TestListMigrations(t *testing.T) {
	t.Run("lists base names oldest first", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{
			"20240201000000_second.up.sql", "20240201000000_second.down.sql",
			"20240101000000_first.up.sql", "20240101000000_first.down.sql",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--\n"), 0o644))
		}

		migrations, err := ListMigrations(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"20240101000000_first", "20240201000000_second"}, migrations)
	})

	t.Run("missing directory lists as empty", func(t *testing.T) {
		migrations, err := ListMigrations(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		assert.Empty(t, migrations)
	})
}
