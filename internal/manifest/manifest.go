// Package manifest persists a RunManifest both as a JSON file next to a
// run's output root and in a bbolt-backed store keyed by run id, so the
// retry utility (C8) can look up a run's failed URLs without
// re-parsing JSON.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/use-agent/webgrabber/models"
)

var bucketName = []byte("run_manifests")

// Store wraps a bbolt database holding one serialized RunManifest per
// run id.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("manifest: create store dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: open bbolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores m keyed by m.RunID.
func (s *Store) Put(m models.RunManifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(m.RunID), data)
	})
}

// Get retrieves the manifest stored for runID.
func (s *Store) Get(runID string) (models.RunManifest, bool, error) {
	var m models.RunManifest
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(runID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return models.RunManifest{}, false, fmt.Errorf("manifest: get %s: %w", runID, err)
	}
	return m, found, nil
}

// WriteJSON writes m as indented JSON to path, the on-disk sibling of
// the bbolt-backed copy (spec §3's "emitted as JSON next to the output
// root").
func WriteJSON(path string, m models.RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a RunManifest previously written by WriteJSON, used by
// the retry utility's --manifest fallback when no bbolt store is
// available.
func ReadJSON(path string) (models.RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.RunManifest{}, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m models.RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return models.RunManifest{}, fmt.Errorf("manifest: unmarshal %s: %w", path, err)
	}
	return m, nil
}
