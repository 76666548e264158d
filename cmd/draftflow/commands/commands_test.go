package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteOutput_YAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "yaml", sourceView{ID: "s1", Channel: "web", Outcome: "ok"}))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "s1", got["id"])
	assert.Equal(t, "web", got["channel"])
	assert.NotContains(t, got, "detail")

	assert.Error(t, writeOutput(&buf, "xml", nil))
}

func TestReadPayload(t *testing.T) {
	raw, err := readPayload(`{"topic":"hope"}`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"hope"}`, string(raw))

	path := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(path, []byte("topic: hope\nvariants: 2\n"), 0o600))
	raw, err = readPayload("", path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"hope","variants":2}`, string(raw))

	raw, err = readPayload("", "")
	require.NoError(t, err)
	assert.Nil(t, raw)

	_, err = readPayload("{}", path)
	assert.Error(t, err)
}

func TestDecodeEdits(t *testing.T) {
	edits, err := decodeEdits(json.RawMessage(`{"path":"credo.summary","op":"replace","value":"x"}`))
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "credo.summary", edits[0].Path)

	edits, err = decodeEdits(json.RawMessage(`[{"path":"a","op":"remove"},{"path":"b","op":"remove"}]`))
	require.NoError(t, err)
	assert.Len(t, edits, 2)

	_, err = decodeEdits(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

// run executes the CLI against a fresh SQLite file and returns stdout.
func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	app := New()
	app.Writer = &buf
	require.NoError(t, app.Run(context.Background(), append([]string{"draftflow", "--env", ""}, args...)))
	return buf.Bytes()
}

func TestCLI_JobAndRunCommands(t *testing.T) {
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LOG_LEVEL", "error")

	run(t, "migrate")

	var job jobView
	require.NoError(t, json.Unmarshal(run(t, "job", "start", "--kind", "content", "--target", "Tim",
		"--input", `{"topic":"hope","variants":1}`), &job))
	assert.Equal(t, "queued", job.Status)
	assert.NotEmpty(t, job.EntityID)

	var listed []jobView
	require.NoError(t, json.Unmarshal(run(t, "job", "list", "--status", "queued"), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, job.ID, listed[0].ID)

	var cancelled jobView
	require.NoError(t, json.Unmarshal(run(t, "job", "cancel", "--id", job.ID), &cancelled))
	assert.Equal(t, "failed", cancelled.Status)

	var stats map[string]map[string]int64
	require.NoError(t, json.Unmarshal(run(t, "job", "stats"), &stats))
	assert.Equal(t, int64(1), stats["content"]["failed"])

	var created runView
	require.NoError(t, json.Unmarshal(run(t, "run", "create", "--channel", "telegram", "--channel", "site"), &created))
	assert.Equal(t, "pending", created.Status)

	var reported runView
	require.NoError(t, yaml.Unmarshal(run(t, "-o", "yaml", "run", "report", "--id", created.ID,
		"--outcomes", `[{"channel":"telegram","result":"success"},{"channel":"site","result":"success"}]`), &reported))
	assert.Equal(t, "success", reported.Status)
	assert.True(t, reported.Finalized)
}
