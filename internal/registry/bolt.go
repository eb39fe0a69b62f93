package registry

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRepositories = []byte("repositories")

// BoltStore persists records in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the registry database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRepositories)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Save(rec Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRepositories).Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRepositories).Delete([]byte(id))
	})
}

func (s *BoltStore) LoadAll() ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRepositories).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
