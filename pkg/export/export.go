// Package export writes committed entity versions to disk as YAML and JSON.
//
// Layout under the base directory:
//
//	<slug>/<kind>/v001.yaml       version manifest with the document
//	<slug>/<kind>/v001.json       same, as JSON
//	<slug>/<kind>/latest.json     the newest exported version
//	<slug>/<kind>/sections/*.json one file per top-level document member
//	<slug>/changelog.yaml         every exported version of the entity
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/hashing"
)

// Manifest is the exported form of one version.
type Manifest struct {
	Entity      string    `yaml:"entity" json:"entity"`
	Slug        string    `yaml:"slug" json:"slug"`
	Kind        string    `yaml:"kind" json:"kind"`
	VersionNo   int       `yaml:"version_no" json:"version_no"`
	VersionID   string    `yaml:"version_id" json:"version_id"`
	JobID       string    `yaml:"job_id,omitempty" json:"job_id,omitempty"`
	Reason      string    `yaml:"reason,omitempty" json:"reason,omitempty"`
	CommittedAt time.Time `yaml:"committed_at" json:"committed_at"`
	Document    any       `yaml:"document" json:"document"`
}

// ChangelogEntry is one line of an entity's changelog.
type ChangelogEntry struct {
	Kind        string    `yaml:"kind"`
	VersionNo   int       `yaml:"version_no"`
	VersionID   string    `yaml:"version_id"`
	Reason      string    `yaml:"reason,omitempty"`
	CommittedAt time.Time `yaml:"committed_at"`
}

// FileExporter writes versions below a base directory.
type FileExporter struct {
	baseDir string
}

// NewFileExporter creates an exporter rooted at baseDir.
func NewFileExporter(baseDir string) *FileExporter {
	return &FileExporter{baseDir: baseDir}
}

// Export writes version and updates the entity's changelog.
func (e *FileExporter) Export(ctx context.Context, entity *core.Entity, version *core.EntityVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(version.Document, &doc); err != nil {
		return fmt.Errorf("decode version %s: %w", version.ID, err)
	}

	slug := entity.Slug
	if slug == "" {
		slug = hashing.Slugify(entity.Name, 64)
	}
	m := Manifest{
		Entity:      entity.Name,
		Slug:        slug,
		Kind:        string(version.Kind),
		VersionNo:   version.VersionNo,
		VersionID:   version.ID,
		Reason:      version.Reason,
		CommittedAt: version.CreatedAt.UTC(),
		Document:    doc,
	}
	if version.JobID != nil {
		m.JobID = *version.JobID
	}

	dir := filepath.Join(e.baseDir, slug, string(version.Kind))
	if err := os.MkdirAll(filepath.Join(dir, "sections"), 0o755); err != nil {
		return err
	}

	base := fmt.Sprintf("v%03d", version.VersionNo)
	yamlData, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	jsonData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	for name, data := range map[string][]byte{
		base + ".yaml": yamlData,
		base + ".json": jsonData,
		"latest.json":  jsonData,
	} {
		if err := writeFile(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data, err := json.MarshalIndent(doc[k], "", "  ")
		if err != nil {
			return fmt.Errorf("encode section %s: %w", k, err)
		}
		if err := writeFile(filepath.Join(dir, "sections", hashing.Slugify(k, 64)+".json"), data); err != nil {
			return err
		}
	}

	return e.appendChangelog(filepath.Join(e.baseDir, slug, "changelog.yaml"), ChangelogEntry{
		Kind:        m.Kind,
		VersionNo:   m.VersionNo,
		VersionID:   m.VersionID,
		Reason:      m.Reason,
		CommittedAt: m.CommittedAt,
	})
}

// appendChangelog adds entry unless a line for the same version is present.
func (e *FileExporter) appendChangelog(path string, entry ChangelogEntry) error {
	var entries []ChangelogEntry
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("read changelog: %w", err)
		}
	case !os.IsNotExist(err):
		return err
	}

	for _, existing := range entries {
		if existing.VersionID == entry.VersionID {
			return nil
		}
	}
	entries = append(entries, entry)

	out, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	return writeFile(path, out)
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
