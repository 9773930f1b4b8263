package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docmemory/internal/backup"
	"github.com/Aman-CERP/docmemory/internal/config"
	"github.com/Aman-CERP/docmemory/internal/ui"
)

func TestStatusCmd_JSON(t *testing.T) {
	// Given: a store with three records and one search recorded
	storage, _ := ingestInbox(t)
	mustRun(t, "--storage", storage, "search", "pasta", "--type", "keyword")

	// When: reading status with a consistency check
	info := decodeJSON[ui.StatusInfo](t, mustRun(t, "--storage", storage, "status", "--json", "--check"))

	// Then: counts, backends, health and query stats are reported
	assert.Equal(t, 3, info.Documents)
	assert.Equal(t, 3, info.IndexSize)
	assert.Equal(t, 384, info.Dimensions)
	assert.Equal(t, "flat", info.VectorBackend)
	assert.Equal(t, "sqlite", info.FullTextBackend)
	assert.Equal(t, "static", info.EmbedderType)
	assert.Equal(t, "static-384", info.EmbedderModel)
	assert.Equal(t, "ready", info.EmbedderStatus)
	assert.Equal(t, "healthy", info.Health)
	assert.Zero(t, info.Issues)
	assert.Positive(t, info.DiskSize)
	assert.False(t, info.Initialized.IsZero())
	assert.Equal(t, int64(1), info.TotalQueries)
	assert.Contains(t, info.TopQueryTerms, "pasta")
}

func TestStatusCmd_Text(t *testing.T) {
	storage, _ := ingestInbox(t)

	out := mustRun(t, "--storage", storage, "status")

	assert.Contains(t, out, "Memory Status: "+storage)
	assert.Contains(t, out, "Documents:    3")
}

func TestCheckAndCompact(t *testing.T) {
	storage, _ := ingestInbox(t)

	out := mustRun(t, "--storage", storage, "check", "--repair")
	assert.Contains(t, out, "Checked 3 records")
	assert.Contains(t, out, "no issues")

	views := decodeJSON[[]recordView](t, mustRun(t, "--storage", storage, "list", "--json"))
	mustRun(t, "--storage", storage, "delete", views[0].ID)

	out = mustRun(t, "--storage", storage, "compact")
	assert.Contains(t, out, "Compacted")
	assert.Contains(t, out, "→ 2 slots")
}

func TestBackupCmd(t *testing.T) {
	// Given: a populated store
	storage, _ := ingestInbox(t)

	// When: creating a backup and listing
	out := mustRun(t, "--storage", storage, "backup")
	list := decodeJSON[[]backup.Info](t, mustRun(t, "--storage", storage, "backup", "list", "--json"))

	// Then: one archive exists in the backups dir
	assert.Contains(t, out, "Backup written")
	require.Len(t, list, 1)
	assert.Equal(t, filepath.Join(storage, backup.DirName), filepath.Dir(list[0].Path))
}

func TestBackupListCmd_Empty(t *testing.T) {
	isolate(t)

	out := mustRun(t, "--storage", t.TempDir(), "backup", "list")

	assert.Contains(t, out, "No backups.")
}

func TestConfigShow_ReflectsStorageFlag(t *testing.T) {
	isolate(t)

	cfg := decodeJSON[config.Config](t, mustRun(t, "--storage", "/srv/memory", "config", "show", "--json"))

	assert.Equal(t, "/srv/memory", cfg.Storage.Path)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
}

func TestConfigShow_FromFile(t *testing.T) {
	// Given: an explicit config file
	isolate(t)
	path := filepath.Join(t.TempDir(), "docmemory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  default_limit: 3\n"), 0o644))

	// When: showing the config
	out := mustRun(t, "--config", path, "config", "show")

	// Then: the file value is merged over the defaults
	assert.Contains(t, out, "default_limit: 3")
	assert.Contains(t, out, "semantic_weight: 0.7")
}

func TestConfigInit(t *testing.T) {
	// Given: no user config
	isolate(t)

	// When: initializing twice, then forcing
	first := mustRun(t, "config", "init")
	second := mustRun(t, "config", "init")
	third := mustRun(t, "config", "init", "--force")

	// Then: the file is created once, kept, then backed up and replaced
	assert.Contains(t, first, "Configuration written to "+config.GetUserConfigPath())
	assert.FileExists(t, config.GetUserConfigPath())
	assert.Contains(t, second, "already exists")
	assert.Contains(t, third, "Backed up to")

	backups, err := config.ListConfigBackups(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}
