package cli

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// withDatabase points the commands at a fresh database.
func withDatabase(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "cardsync.db"))
	t.Setenv("SECRET_KEY", "cli-test-secret")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("1.2.3")
	require.NotNil(t, cmd)
	assert.Equal(t, "cardsync", cmd.Use)
	assert.Equal(t, "1.2.3", cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("test")
	commands := []string{
		"serve", "pull", "push", "apply", "preview", "runs", "staged",
		"test-connection", "tables", "fields", "apply-config", "generate-secret",
	}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand("test")

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "generate-secret", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGenerateSecret(t *testing.T) {
	out, err := execute(t, "generate-secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	out, err = execute(t, "generate-secret", "--format", "json")
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.NotEmpty(t, payload["secret_key"])
}

func TestInvalidIDs(t *testing.T) {
	for _, args := range [][]string{
		{"pull", "abc"},
		{"push", "0"},
		{"apply", "1.5"},
		{"staged", "x"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err, args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args)
	}
}

func TestMissingSecretKey(t *testing.T) {
	withDatabase(t)
	t.Setenv("SECRET_KEY", "")

	_, err := execute(t, "runs")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "SECRET_KEY")
}

const cliMappingFile = `
connection:
  name: prod
  url: https://instance.example.com
  auth_kind: basic
  credentials:
    username: admin
    password: pw
mappings:
  - name: applications
    card_type: application
    remote_table: cmdb_ci_appl
    fields:
      - remote: name
        local: name
        identity: true
`

func TestApplyConfigThenQuery(t *testing.T) {
	withDatabase(t)

	path := filepath.Join(t.TempDir(), "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliMappingFile), 0o600))

	out, err := execute(t, "apply-config", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "applications")

	out, err = execute(t, "apply-config", "-f", path, "--format", "json")
	require.NoError(t, err)
	var result struct {
		ConnectionCreated bool     `json:"connection_created"`
		MappingsUpdated   []string `json:"mappings_updated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.ConnectionCreated)
	assert.Equal(t, []string{"applications"}, result.MappingsUpdated)

	out, err = execute(t, "runs", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 0`)

	_, err = execute(t, "staged", "42")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "pull", "99")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestApplyConfig_InvalidFile(t *testing.T) {
	withDatabase(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection: {name: x}\n"), 0o600))

	_, err := execute(t, "apply-config", "-f", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := WrapExitError(ExitFailure, "pull failed", inner)

	assert.Equal(t, "pull failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(inner))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
}
