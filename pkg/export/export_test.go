package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mpislabs/draftflow/pkg/core"
)

func version(no int, doc string) *core.EntityVersion {
	jobID := "job-1"
	return &core.EntityVersion{
		ID:        "ver-" + string(rune('0'+no)),
		EntityID:  "ent-1",
		VersionNo: no,
		JobID:     &jobID,
		Kind:      core.KindPersona,
		Document:  []byte(doc),
		Reason:    "persona job approved",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExport_WritesVersionFiles(t *testing.T) {
	dir := t.TempDir()
	e := NewFileExporter(dir)
	entity := &core.Entity{ID: "ent-1", Name: "Tim Keller", Slug: "tim-keller"}

	doc := `{"credo":{"summary":"grace"},"Tone Profile":["warm","direct"],"years":3}`
	require.NoError(t, e.Export(context.Background(), entity, version(1, doc)))

	kindDir := filepath.Join(dir, "tim-keller", "persona")

	data, err := os.ReadFile(filepath.Join(kindDir, "v001.yaml"))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, "Tim Keller", m.Entity)
	assert.Equal(t, 1, m.VersionNo)
	assert.Equal(t, "job-1", m.JobID)
	body := m.Document.(map[string]any)
	assert.Equal(t, 3, body["years"])

	latest, err := os.ReadFile(filepath.Join(kindDir, "latest.json"))
	require.NoError(t, err)
	v1, err := os.ReadFile(filepath.Join(kindDir, "v001.json"))
	require.NoError(t, err)
	assert.Equal(t, v1, latest)

	credo, err := os.ReadFile(filepath.Join(kindDir, "sections", "credo.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"grace"}`, string(credo))
	assert.FileExists(t, filepath.Join(kindDir, "sections", "tone-profile.json"))
}

func TestExport_ChangelogAccumulates(t *testing.T) {
	dir := t.TempDir()
	e := NewFileExporter(dir)
	entity := &core.Entity{ID: "ent-1", Name: "Tim", Slug: "tim"}

	require.NoError(t, e.Export(context.Background(), entity, version(1, `{"a":1}`)))
	require.NoError(t, e.Export(context.Background(), entity, version(2, `{"a":2}`)))
	// Re-exporting a version does not duplicate its changelog line.
	require.NoError(t, e.Export(context.Background(), entity, version(2, `{"a":2}`)))

	data, err := os.ReadFile(filepath.Join(dir, "tim", "changelog.yaml"))
	require.NoError(t, err)
	var entries []ChangelogEntry
	require.NoError(t, yaml.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].VersionNo)
	assert.Equal(t, 2, entries[1].VersionNo)

	latest, err := os.ReadFile(filepath.Join(dir, "tim", "persona", "latest.json"))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(latest, &m))
	assert.Equal(t, 2, m.VersionNo)
}

func TestExport_InvalidDocument(t *testing.T) {
	e := NewFileExporter(t.TempDir())
	err := e.Export(context.Background(), &core.Entity{Slug: "x"}, version(1, `not json`))
	assert.Error(t, err)
}

func TestExport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewFileExporter(t.TempDir())
	err := e.Export(ctx, &core.Entity{Slug: "x"}, version(1, `{}`))
	assert.ErrorIs(t, err, context.Canceled)
}
