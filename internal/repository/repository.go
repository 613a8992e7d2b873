// Package repository defines the contract for persisting a confirmed
// interesting seed, plus a reference implementation that writes one JSON
// file per seed to a directory.
package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"permfuzz/internal/anomaly"
	"permfuzz/internal/seed"
)

// Repository is the external-collaborator contract for durable storage of
// confirmed seeds. The on-disk/wire format is deliberately out of scope
// beyond what FileRepository needs to round-trip through List.
type Repository interface {
	Persist(s *seed.Seed) (path string, err error)
	List() ([]*seed.Seed, error)
}

// record is the on-disk shape written by FileRepository.
type record struct {
	Artifact        []byte                 `json:"artifact"`
	Class           string                 `json:"class"`
	Package         string                 `json:"package"`
	Lineage         []seed.MutationRecord  `json:"lineage"`
	Interestingness float64                `json:"interestingness"`
	Description     string                 `json:"description"`
	AnomalyKinds    []string               `json:"anomaly_kinds"`
	PersistedAt     time.Time              `json:"persisted_at"`
}

// FileRepository writes one JSON file per persisted seed under Dir.
type FileRepository struct {
	Dir string
}

// NewFileRepository ensures dir exists and returns a FileRepository rooted
// there.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "repository: create %s", dir)
	}
	return &FileRepository{Dir: dir}, nil
}

// fileName derives a descriptive, collision-resistant name: <kind>_<bucket>_<timestamp>.json.
func fileName(s *seed.Seed, now time.Time) string {
	kind := "seed"
	bucket := "na"
	if len(s.Anomalies) > 0 {
		kind = s.Anomalies[0].Kind.String()
		switch {
		case s.Anomalies[0].Kind == anomaly.Error && len(s.Anomalies[0].ExitCodes) > 0:
			for _, code := range s.Anomalies[0].ExitCodes {
				bucket = fmt.Sprintf("exit%d", code)
				break
			}
		default:
			bucket = fmt.Sprintf("%.0fpct", s.Anomalies[0].AverageDeviation)
		}
	}
	return fmt.Sprintf("%s_%s_%d.json", kind, bucket, now.UnixNano())
}

// Persist writes s to a new file under Dir and returns its path.
func (r *FileRepository) Persist(s *seed.Seed) (string, error) {
	now := time.Now()
	rec := record{
		Artifact:        s.Artifact,
		Class:           s.Class,
		Package:         s.Package,
		Lineage:         s.Lineage,
		Interestingness: s.Interestingness,
		Description:     s.Description(),
		PersistedAt:     now,
	}
	for _, g := range s.Anomalies {
		rec.AnomalyKinds = append(rec.AnomalyKinds, g.Kind.String())
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "repository: marshal")
	}
	path := filepath.Join(r.Dir, fileName(s, now))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "repository: write %s", path)
	}
	return path, nil
}

// List loads every persisted seed under Dir. Anomaly groups are not
// reconstructed (the stored record only carries their kinds for display);
// List is meant for re-verification and reporting, not resuming a search.
func (r *FileRepository) List() ([]*seed.Seed, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "repository: read %s", r.Dir)
	}
	var out []*seed.Seed
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(r.Dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "repository: read %s", path)
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, errors.Wrapf(err, "repository: parse %s", path)
		}
		out = append(out, &seed.Seed{
			Artifact:        rec.Artifact,
			Class:           rec.Class,
			Package:         rec.Package,
			Lineage:         rec.Lineage,
			Interestingness: rec.Interestingness,
			Verified:        true,
		})
	}
	return out, nil
}
