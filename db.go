package main

import (
	"bytes"
	"encoding/gob"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var bucketName = []byte("txns")

// Txn is an answered row, rendered and waiting to be written out.
type Txn struct {
	Key     []byte
	Index   int
	Date    time.Time
	Account string
	Text    string
}

// session keeps the answers of an interactive run in a bolt file, so that
// going back to a row replaces its answer and nothing is written to the
// output before the run ends.
type session struct {
	db *bolt.DB
}

func openSession(path string) (*session, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open boltdb at %v", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to create default bucket in boltdb")
	}
	return &session{db: db}, nil
}

func (s *session) Close() error { return s.db.Close() }

func (s *session) writeToDB(t Txn) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var val bytes.Buffer
		if err := gob.NewEncoder(&val).Encode(t); err != nil {
			return errors.Wrapf(err, "unable to encode txn: %v", t.Index)
		}
		return tx.Bucket(bucketName).Put(t.Key, val.Bytes())
	})
}

func (s *session) deleteFromDB(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

// iterateDB returns every stored answer in row order.
func (s *session) iterateDB() ([]Txn, error) {
	var txns []Txn
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var t Txn
			if err := gob.NewDecoder(bytes.NewBuffer(v)).Decode(&t); err != nil {
				return errors.Wrapf(err, "unable to parse txn from value of length: %v", len(v))
			}
			txns = append(txns, t)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterate over db failed")
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Index < txns[j].Index })
	return txns, nil
}
