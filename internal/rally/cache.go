package rally

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"log/slog"
)

// Cache stores one JSON document per artifact under the output root,
// keyed by artifact category and object id, plus the raw attachment
// blobs under an assets subtree. Writes are idempotent unless forced,
// so interrupted dumps can be re-run cheaply.
type Cache struct {
	root   string
	logger *slog.Logger
}

// NewCache creates a Cache rooted at root.
func NewCache(root string, logger *slog.Logger) *Cache {
	return &Cache{root: root, logger: logger}
}

// ArtifactPath returns the cache path for an artifact document.
func (c *Cache) ArtifactPath(a *Artifact) string {
	category := strings.ToLower(a.Type)
	return filepath.Join(c.root, "artifacts", category, strconv.FormatInt(a.ObjectID, 10)+".json")
}

// WriteArtifact persists one artifact document. An existing document is
// left untouched unless force is set.
func (c *Cache) WriteArtifact(a *Artifact, force bool) error {
	path := c.ArtifactPath(a)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact %d: %w", a.ObjectID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %d: %w", a.ObjectID, err)
	}
	return nil
}

// LoadArtifacts reads every cached artifact document back into memory.
// When ids is non-empty only artifacts with a listed object id are
// returned.
func (c *Cache) LoadArtifacts(ids map[int64]bool) ([]*Artifact, error) {
	root := filepath.Join(c.root, "artifacts")
	var artifacts []*Artifact

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var a Artifact
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if len(ids) > 0 && !ids[a.ObjectID] {
			return nil
		}
		artifacts = append(artifacts, &a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}

	c.logger.Info("loaded cached artifacts", "count", len(artifacts))
	return artifacts, nil
}

// AttachmentPath returns the on-disk blob path for an attachment,
// mirroring the WSAPI reference layout beneath the assets root.
func (c *Cache) AttachmentPath(ref AttachmentRef) string {
	return filepath.Join(
		c.root, "assets",
		"slm", "webservice", "v2.0", "attachment",
		strconv.FormatInt(ref.ObjectID, 10),
		ref.Name,
	)
}

// HasAttachment reports whether the attachment blob is already cached.
func (c *Cache) HasAttachment(ref AttachmentRef) bool {
	_, err := os.Stat(c.AttachmentPath(ref))
	return err == nil
}

// WriteAttachment persists one attachment blob, idempotently unless forced.
func (c *Cache) WriteAttachment(ref AttachmentRef, content []byte, force bool) error {
	if !force && c.HasAttachment(ref) {
		return nil
	}
	path := c.AttachmentPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write attachment %d: %w", ref.ObjectID, err)
	}
	return nil
}
