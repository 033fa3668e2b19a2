package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/drvig/updns/pkg/types"
)

var bucketRuns = []byte("runs")

// Store persists a record per run so operators can answer "when did this
// stack last update, and how did it go" without digging through run logs.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the history database under dataDir
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, "updns.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a run record. Keys are the run start time in RFC3339Nano,
// so bucket order is chronological.
func (s *Store) Append(record types.RunRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal run record: %w", err)
		}

		key := []byte(record.StartedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
		return b.Put(key, data)
	})
}

// List returns up to limit run records, newest first. limit <= 0 returns
// everything.
func (s *Store) List(limit int) ([]types.RunRecord, error) {
	var records []types.RunRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}

			var record types.RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal run record %s: %w", k, err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}
