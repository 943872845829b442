package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrator_RequiresConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.Error(t, err)

	_, err = NewMigrator(&Config{})
	assert.Error(t, err)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", name)
		}
	}

	for base := range ups {
		assert.True(t, downs[base], "missing down migration for %s", base)
	}
	for base := range downs {
		assert.True(t, ups[base], "missing up migration for %s", base)
	}
}

func TestEmbeddedMigrationsDefineCoreSchema(t *testing.T) {
	chunks, err := fs.ReadFile(migrationsFS, "migrations/0002_create_chunks.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(chunks), "vector(1024)")
	assert.Contains(t, string(chunks), "tsvector")

	convs, err := fs.ReadFile(migrationsFS, "migrations/0003_create_conversations.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(convs), "UNIQUE (conversation_id, turn_number)")
}
