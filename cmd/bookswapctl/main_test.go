package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUserAddThenCheck(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("BOOKSWAP_CONFIG", "")

	out, err := execute(t, "hunter2\n", "useradd", "--name", "Ann", "--email", "Ann@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "created user Ann <ann@example.com>")

	data, err := os.ReadFile(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	_, err = execute(t, "hunter2\n", "useradd", "--name", "Ann", "--email", "ann@example.com")
	assert.Error(t, err)

	out, err = execute(t, "", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "No inconsistencies found")
}

func TestUserAddRequiresPassword(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("BOOKSWAP_CONFIG", "")

	_, err := execute(t, "", "useradd", "--name", "Ann", "--email", "ann@example.com")
	assert.ErrorContains(t, err, "empty password")
}

func TestCheckAndRepairLegacyData(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("BOOKSWAP_CONFIG", "")

	files := map[string]string{
		"users.json": `[{"id":"ann","name":"Ann","email":"ann@example.com","password":"x","createdAt":"2024-01-01T00:00:00Z"},
{"id":"ben","name":"Ben","email":"ben@example.com","password":"x","createdAt":"2024-01-01T00:00:00Z"}]`,
		"books.json": `[{"id":"dune","title":"Dune","author":"Herbert","condition":"good","userId":"ann","status":"available","createdAt":{}}]`,
		"requests.json": `[{"id":"r1","bookId":"dune","requesterId":"ben","message":"","status":"accepted","createdAt":"2024-01-03T00:00:00Z","updatedAt":"2024-01-03T00:00:00Z"}]`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	out, err := execute(t, "", "check", "--json")
	require.Error(t, err)
	assert.Contains(t, out, `"kind": "accepted_not_traded"`)

	out, err = execute(t, "", "repair")
	require.NoError(t, err)
	assert.Contains(t, out, "1 records repaired")

	out, err = execute(t, "", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "No inconsistencies found")
}
