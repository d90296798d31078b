package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltLedger stores one bucket per job, keyed by input reference.
type BoltLedger struct {
	db *bolt.DB
}

func OpenBoltLedger(path string) (*BoltLedger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &BoltLedger{db: db}, nil
}

func (b *BoltLedger) Load(_ context.Context, jobID string) (map[string]Entry, error) {
	out := map[string]Entry{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(jobID))
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("ledger %s/%s: %w", jobID, k, err)
			}
			out[string(k)] = e
			return nil
		})
	})
	return out, err
}

func (b *BoltLedger) Save(_ context.Context, jobID string, e Entry) error {
	v, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists([]byte(jobID))
		if err != nil {
			return err
		}
		return bk.Put([]byte(e.Ref), v)
	})
}

func (b *BoltLedger) Close() error { return b.db.Close() }
