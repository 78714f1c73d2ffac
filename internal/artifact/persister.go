// Package artifact implements the Result Persister (C6): atomic
// writes of scraping artifacts and summaries to the filesystem, with
// read-back verification and bounded exponential-backoff retry.
package artifact

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeready-toolchain/ingestor/internal/errs"
	"github.com/codeready-toolchain/ingestor/internal/model"
)

// Persister writes artifacts under <root>/batches/<batch_id>/ and
// summaries as siblings.
type Persister struct {
	root    string
	attempts int
}

func NewPersister(root string, attempts int) *Persister {
	if attempts <= 0 {
		attempts = 3
	}
	return &Persister{root: root, attempts: attempts}
}

func (p *Persister) batchDir(batchID string) string {
	return filepath.Join(p.root, "batches", batchID)
}

// Save persists a scraping artifact as <link_id>_<link_kind>.json and
// returns its final path.
func (p *Persister) Save(batchID, linkID string, a model.Artifact) (string, error) {
	name := fmt.Sprintf("%s_%s.json", linkID, a.LinkKind)
	return p.writeJSON(p.batchDir(batchID), name, a)
}

// SaveSummary persists a Summary as <link_id>_summary.json.
func (p *Persister) SaveSummary(batchID, linkID string, s model.Summary) (string, error) {
	name := fmt.Sprintf("%s_summary.json", linkID)
	return p.writeJSON(p.batchDir(batchID), name, s)
}

// writeJSON marshals v, writes it to a temp file in dir, fsyncs, renames
// it into place, then reads it back to confirm the bytes landed — all
// retried with exponential backoff and jitter up to p.attempts times
// before returning a PersistenceFailed error.
func (p *Persister) writeJSON(dir, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errs.New(errs.CodePersistenceFailed, "C6", fmt.Errorf("marshal: %w", err))
	}

	final := filepath.Join(dir, name)
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}
		if err := p.writeOnce(dir, final, data); err != nil {
			lastErr = err
			continue
		}
		return final, nil
	}
	return "", errs.New(errs.CodePersistenceFailed, "C6", fmt.Errorf("after %d attempts: %w", p.attempts, lastErr))
}

func (p *Persister) writeOnce(dir, final string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	readBack, err := os.ReadFile(final)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if len(readBack) != len(data) {
		return fmt.Errorf("read back mismatch: wrote %d bytes, read %d", len(data), len(readBack))
	}
	return nil
}

// LoadArtifact reads back a single persisted artifact by the path Save
// returned for it.
func (p *Persister) LoadArtifact(path string) (model.Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("artifact: read %s: %w", path, err)
	}
	var a model.Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Artifact{}, fmt.Errorf("artifact: unmarshal %s: %w", path, err)
	}
	return a, nil
}

// LoadSummaries reads every *_summary.json file persisted for batchID, for
// the research phases (C10) to consume as Phase 3 Execute's source
// material.
func (p *Persister) LoadSummaries(batchID string) ([]model.Summary, error) {
	dir := p.batchDir(batchID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: read batch dir: %w", err)
	}
	var out []model.Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), "_summary.json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("artifact: read %s: %w", e.Name(), err)
		}
		var s model.Summary
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("artifact: unmarshal %s: %w", e.Name(), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// backoff applies the same base-plus-jitter shape used for queue
// polling, scaled up for filesystem retries.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 50 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
