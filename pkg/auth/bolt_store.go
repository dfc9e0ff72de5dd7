package auth

import (
	"encoding/json"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var (
	usersBucket = []byte("users")
	emailBucket = []byte("emails") // normalized email -> user id
)

// BoltStore is a durable user repository backed by a bbolt file. Users are
// stored JSON-encoded under their id with a secondary email index.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file and its buckets.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening user database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(usersBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(emailBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing user database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) FindByEmail(email string) (*User, error) {
	var user *User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(emailBucket).Get([]byte(strings.ToLower(email)))
		if id == nil {
			return ErrNotFound
		}
		raw := tx.Bucket(usersBucket).Get(id)
		if raw == nil {
			return ErrNotFound
		}
		user = &User{}
		return json.Unmarshal(raw, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BoltStore) FindByID(id string) (*User, error) {
	var user *User
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(usersBucket).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		user = &User{}
		return json.Unmarshal(raw, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *BoltStore) Create(user *User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(emailBucket)
		key := []byte(strings.ToLower(user.Email))
		if emails.Get(key) != nil {
			return ErrDuplicateEmail
		}
		raw, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := tx.Bucket(usersBucket).Put([]byte(user.ID), raw); err != nil {
			return err
		}
		return emails.Put(key, []byte(user.ID))
	})
}

func (s *BoltStore) Close() error { return s.db.Close() }
