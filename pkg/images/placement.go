package images

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/cyris/pkg/types"
)

var placementBucket = []byte("image_records")

// PlacementTable tracks which (fingerprint, host) pairs already have a
// distributed copy of a base image, so the Distributor can skip hosts that
// already hold current content. Backed by go.etcd.io/bbolt as a small
// durable KV table.
type PlacementTable struct {
	db *bolt.DB
}

// OpenPlacementTable opens (creating if absent) the bbolt file at path.
func OpenPlacementTable(path string) (*PlacementTable, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open placement table %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(placementBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create placement bucket: %w", err)
	}

	return &PlacementTable{db: db}, nil
}

func recordKey(fingerprint, hostID string) []byte {
	return []byte(fingerprint + "|" + hostID)
}

// Get returns the ImageRecord for (fingerprint, hostID), or ok=false if no
// placement is recorded.
func (t *PlacementTable) Get(fingerprint, hostID string) (types.ImageRecord, bool, error) {
	var rec types.ImageRecord
	found := false

	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(placementBucket)
		v := b.Get(recordKey(fingerprint, hostID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return types.ImageRecord{}, false, fmt.Errorf("get placement record: %w", err)
	}
	return rec, found, nil
}

// Put records that fingerprint's content now lives on hostID at path.
func (t *PlacementTable) Put(rec types.ImageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal image record: %w", err)
	}

	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(placementBucket)
		return b.Put(recordKey(rec.Fingerprint, rec.HostID), data)
	})
}

// Delete removes the placement record, used when a re-hash fails and the
// corrupt copy is evicted.
func (t *PlacementTable) Delete(fingerprint, hostID string) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(placementBucket)
		return b.Delete(recordKey(fingerprint, hostID))
	})
}

// List returns every recorded placement.
func (t *PlacementTable) List() ([]types.ImageRecord, error) {
	var out []types.ImageRecord
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(placementBucket)
		return b.ForEach(func(k, v []byte) error {
			var rec types.ImageRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list placement records: %w", err)
	}
	return out, nil
}

// Close closes the underlying bbolt file.
func (t *PlacementTable) Close() error {
	return t.db.Close()
}
