package cmd

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[strings.Fields(c.Use)[0]] = true
	}

	for _, name := range []string{"serve", "lambda", "validate"} {
		assert.True(t, registered[name], "expected command %q to be registered", name)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func resetValidateFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = validateCmd.Flags().Set("base64", "false")
		_ = validateCmd.Flags().Set("strict", "false")
	})
}

func TestValidateCommand(t *testing.T) {
	resetValidateFlags(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{"event_type":"purchase","service_name":"checkout","timestamp":"2024-03-05T10:00:00Z"}`)

	out, err := execute(t, "validate", good)
	require.NoError(t, err, out)
	assert.Regexp(t, `good\.json: ok year=2024/month=03/day=05/service=checkout/\d+\.json\.gz`, out)
}

func TestValidateCommand_Failures(t *testing.T) {
	resetValidateFlags(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{"event_type":"x"}`)
	invalid := writeFile(t, dir, "invalid.json", `{"service_name":"checkout"}`)
	broken := writeFile(t, dir, "broken.json", `{"event_type":`)

	out, err := execute(t, "validate", good, invalid, broken)
	assert.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, "good.json: ok ")
	assert.Contains(t, out, "invalid.json: invalid_payload: ")
	assert.Contains(t, out, "broken.json: decode: ")
}

func TestValidateCommand_Base64(t *testing.T) {
	resetValidateFlags(t)
	dir := t.TempDir()
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"event_type":"x","service_name":"b64"}`))
	path := writeFile(t, dir, "encoded.txt", encoded)

	out, err := execute(t, "validate", "--base64", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "service=b64/")
}

func TestValidateCommand_Strict(t *testing.T) {
	resetValidateFlags(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "loose.json", `{"event_type":"x","timestamp":"sometime last week"}`)

	out, err := execute(t, "validate", path)
	require.NoError(t, err, out)

	out, err = execute(t, "validate", "--strict", path)
	assert.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out, "invalid timestamp format")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	resetValidateFlags(t)

	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read ")
}

func TestServeCommand_RequiresBucket(t *testing.T) {
	t.Setenv("RAW_BUCKET", "")
	t.Setenv("RAWINGEST_STORAGE_BUCKET", "")

	_, err := execute(t, "serve", "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket is required")
}

func TestLambdaCommand_RequiresBucket(t *testing.T) {
	t.Setenv("RAW_BUCKET", "")
	t.Setenv("RAWINGEST_STORAGE_BUCKET", "")

	_, err := execute(t, "lambda")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket is required")
}
