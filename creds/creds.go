// Package creds persists the bearer token between runs.
package creds

import (
	"fmt"

	"github.com/golang/glog"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketName = []byte("auth")
	tokenKey   = []byte("auth_token")
)

// Store keeps the access token in a small bbolt file. One store per client;
// all session state besides the token is in memory only.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("creds: open `%s`: %v", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creds: init bucket: %v", err)
	}
	return &Store{db: db}, nil
}

// Token returns the stored token, empty if none.
func (s *Store) Token() string {
	var tok string
	if err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get(tokenKey); v != nil {
			tok = string(v)
		}
		return nil
	}); err != nil {
		glog.Errorf("creds: read token: %v", err)
	}
	return tok
}

func (s *Store) SetToken(tok string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(tokenKey, []byte(tok))
	})
}

func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(tokenKey)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
