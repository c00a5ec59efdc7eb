package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketEvents = []byte("events")
	bucketMeta   = []byte("meta")

	keyLastExpiry = []byte("last_expiry")
)

// ErrEmptySubscriber is returned when a row is added without a subscriber name
var ErrEmptySubscriber = errors.New("subscriber name is empty")

// keySize is an 8 byte big-endian event time in nanoseconds followed by an
// 8 byte sequence, so cursor order is time order.
const keySize = 16

// BoltStore implements Store using BoltDB. Each subscriber gets a nested
// bucket under "events".
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "lookout.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func eventKey(t time.Time, seq uint64) []byte {
	k := make([]byte, keySize)
	binary.BigEndian.PutUint64(k[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}

func keyTime(k []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(k[:8])))
}

func (s *BoltStore) Add(subscriber string, t time.Time, row types.Row) (uint64, error) {
	if subscriber == "" {
		return 0, ErrEmptySubscriber
	}

	var eid uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(subscriber))
		if err != nil {
			return fmt.Errorf("failed to create bucket for %s: %w", subscriber, err)
		}
		eid, err = b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(&types.Record{EID: eid, Time: t, Row: row})
		if err != nil {
			return err
		}
		return b.Put(eventKey(t, eid), data)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add row for %s: %w", subscriber, err)
	}

	metrics.StoreRows.WithLabelValues(subscriber).Inc()
	return eid, nil
}

func (s *BoltStore) Generate(ctx context.Context, subscriber string, bounds types.Bounds) ([]*types.Record, error) {
	var records []*types.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket([]byte(subscriber))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		var k, v []byte
		if bounds.Start.IsZero() {
			k, v = c.First()
		} else {
			k, v = c.Seek(eventKey(bounds.Start, 0))
		}

		for n := 0; k != nil; k, v = c.Next() {
			if n++; n%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if len(k) != keySize {
				continue
			}
			if !bounds.End.IsZero() && keyTime(k).After(bounds.End) {
				break
			}

			var r types.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			records = append(records, &r)
		}
		return nil
	})
	return records, err
}

func (s *BoltStore) Expire(before time.Time) (int, error) {
	total := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		err := events.ForEachBucket(func(name []byte) error {
			b := events.Bucket(name)

			// Collect first; deleting under a moving cursor skips keys.
			var stale [][]byte
			c := b.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if len(k) == keySize && !keyTime(k).Before(before) {
					break
				}
				stale = append(stale, append([]byte(nil), k...))
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
			}

			if len(stale) > 0 {
				metrics.StoreExpired.WithLabelValues(string(name)).Add(float64(len(stale)))
			}
			total += len(stale)
			return nil
		})
		if err != nil {
			return err
		}

		stamp, err := before.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLastExpiry, stamp)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire rows: %w", err)
	}
	return total, nil
}

// LastExpiry returns the cutoff of the most recent Expire, or the zero time
func (s *BoltStore) LastExpiry() (time.Time, error) {
	var t time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyLastExpiry)
		if data == nil {
			return nil
		}
		return t.UnmarshalBinary(data)
	})
	return t, err
}

func (s *BoltStore) Count(subscriber string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket([]byte(subscriber))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) Subscribers() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEachBucket(func(name []byte) error {
			names = append(names, string(name))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}
