package commands_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/tally/internal/accounts"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary once for all tests.
	tmpDir, err := os.MkdirTemp("", "tally-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "tally")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/tally")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	os.Exit(m.Run())
}

func runTally(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "TALLY_LOG_LEVEL=warn")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// initWorkspace creates a workspace without git unless the test needs it.
func initWorkspace(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	args := append([]string{"init", dir, "--name", "Test Biz", "--org", "org-1"}, extra...)
	out, err := runTally(t, args...)
	require.NoError(t, err, out)
	return dir
}

func TestInit_CreatesStructure(t *testing.T) {
	dir := initWorkspace(t, "--no-git")

	expectedDirs := []string{
		"accounts",
		"rules",
		"ledger",
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range expectedDirs {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir(), "%s should be a directory", d)
	}

	data, err := os.ReadFile(filepath.Join(dir, "rules", "categorization-rules.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "rules: []\n", string(data))
}

func TestInit_Config(t *testing.T) {
	dir := initWorkspace(t, "--no-git")

	data, err := os.ReadFile(filepath.Join(dir, "tally.yaml"))
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "name: Test Biz")
	assert.Contains(t, contents, "organization: org-1")
	assert.Contains(t, contents, "driver: ledger")
}

func TestInit_Accounts(t *testing.T) {
	dir := initWorkspace(t, "--no-git")

	f, err := os.Open(filepath.Join(dir, "accounts", "accounts.csv"))
	require.NoError(t, err)
	defer f.Close()

	accts, err := accounts.ReadAccounts(f)
	require.NoError(t, err)
	assert.Len(t, accts, 3)
	for _, a := range accts {
		assert.Equal(t, "org-1", a.OrganizationID)
	}
}

func TestInit_GitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := initWorkspace(t)

	_, err := os.Stat(filepath.Join(dir, ".git"))
	require.NoError(t, err, ".git should exist")

	log := exec.Command("git", "log", "--format=%s|%an <%ae>", "-1")
	log.Dir = dir
	out, err := log.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), "init: Initialize Test Biz|Tally Importer <importer@tally.local>")
}

func TestInit_Gitignore(t *testing.T) {
	dir := initWorkspace(t, "--no-git")

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".env")
}

func TestInit_RequiresName(t *testing.T) {
	_, err := runTally(t, "init", t.TempDir())
	require.Error(t, err, "init without --name should fail")
}

func TestInit_RefusesExistingWorkspace(t *testing.T) {
	dir := initWorkspace(t, "--no-git")
	out, err := runTally(t, "init", dir, "--name", "Again", "--no-git")
	require.Error(t, err)
	assert.Contains(t, out, "tally.yaml already exists")
}
