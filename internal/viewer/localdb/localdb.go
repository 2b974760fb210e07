// Package localdb persists the viewer's applied state in a local bbolt file,
// keyed by distance id then competitor id. The store is written through on
// every applied change and loaded once at startup; "clear all data" drops the
// buckets wholesale.
package localdb

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"live-results/dashboard/internal/model"
)

var (
	bucketMeta        = []byte("meta")
	bucketDistances   = []byte("distances")
	bucketCompetitors = []byte("competitors")

	keyEventName = []byte("event_name")
)

var buckets = [][]byte{bucketMeta, bucketDistances, bucketCompetitors}

// DB wraps the bbolt handle.
type DB struct {
	db *bbolt.DB
}

// Open opens (or creates) the database file and ensures all buckets exist.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open viewer state db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close releases the file handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveEventName stores the current event title.
func (d *DB) SaveEventName(name string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyEventName, []byte(name))
	})
}

// SaveDistance writes one distance record through.
func (d *DB) SaveDistance(dist *model.Distance) error {
	data, err := json.Marshal(dist)
	if err != nil {
		return fmt.Errorf("marshal distance %s: %w", dist.ID, err)
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDistances).Put([]byte(dist.ID), data)
	})
}

// SaveCompetitor writes one competitor record through.
func (d *DB) SaveCompetitor(comp *model.Competitor) error {
	data, err := json.Marshal(comp)
	if err != nil {
		return fmt.Errorf("marshal competitor %s: %w", comp.ID, err)
	}
	key := comp.DistanceID + "/" + comp.ID
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCompetitors).Put([]byte(key), data)
	})
}

// Stored is everything the database holds, in no particular order.
type Stored struct {
	EventName   string
	Distances   []*model.Distance
	Competitors []*model.Competitor
}

// Load reads the full persisted state.
func (d *DB) Load() (*Stored, error) {
	out := &Stored{}
	err := d.db.View(func(tx *bbolt.Tx) error {
		if name := tx.Bucket(bucketMeta).Get(keyEventName); name != nil {
			out.EventName = string(name)
		}
		err := tx.Bucket(bucketDistances).ForEach(func(_, v []byte) error {
			var dist model.Distance
			if err := json.Unmarshal(v, &dist); err != nil {
				return fmt.Errorf("unmarshal distance: %w", err)
			}
			out.Distances = append(out.Distances, &dist)
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCompetitors).ForEach(func(_, v []byte) error {
			var comp model.Competitor
			if err := json.Unmarshal(v, &comp); err != nil {
				return fmt.Errorf("unmarshal competitor: %w", err)
			}
			out.Competitors = append(out.Competitors, &comp)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reset wipes every bucket; the next replay repopulates the store.
func (d *DB) Reset() error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("drop bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("recreate bucket %s: %w", name, err)
			}
		}
		return nil
	})
}
