package commands_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	out, err := runTally(t, "--version")
	require.NoError(t, err, out)
	assert.Contains(t, out, "tally version dev")
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	dir := initWorkspace(t, "--no-git")
	out, err := runTally(t, "migrate", "--repo", dir)
	require.Error(t, err)
	assert.Contains(t, out, `migrate needs store.driver "postgres" (current "ledger")`)
}

func TestSyncSheets_RequiresSpreadsheet(t *testing.T) {
	dir := initWorkspace(t, "--no-git")
	out, err := runTally(t, "sync", "sheets", "--repo", dir, "--range", "A1:D")
	require.Error(t, err)
	assert.Contains(t, out, "no spreadsheet")
}

func TestOutsideWorkspace(t *testing.T) {
	out, err := runTally(t, "import", "--repo", t.TempDir(), "--account", "checking")
	require.Error(t, err)
	assert.Contains(t, out, "tally.yaml")
}

func TestEnvOverridesStoreDriver(t *testing.T) {
	dir := initWorkspace(t, "--no-git")
	writeFile(t, dir+"/.env", "TALLY_STORE_DRIVER=sqlite\n")
	out, err := runTally(t, "rules", "list", "--repo", dir)
	require.Error(t, err)
	assert.Contains(t, out, "sqlite")
}
