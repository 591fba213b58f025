package settings

import (
	"flag"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSettings = []byte("settings")
	keyCallsign    = []byte("callsign")
)

type Config struct {
	Path string `yaml:"path"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.Path, "settings.path", "", "File to remember the custom callsign in across restarts. Empty keeps it in memory only")
}

// Store keeps user preferences across restarts.
type Store struct {
	db *bolt.DB
}

func Open(cfg Config) (*Store, error) {
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening settings %s", cfg.Path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating settings bucket")
	}
	return &Store{db: db}, nil
}

// Callsign returns the saved callsign, or "" if none is saved.
func (s *Store) Callsign() (string, error) {
	var callsign string
	err := s.db.View(func(tx *bolt.Tx) error {
		callsign = string(tx.Bucket(bucketSettings).Get(keyCallsign))
		return nil
	})
	return callsign, err
}

// SetCallsign saves callsign. An empty callsign removes the saved one.
func (s *Store) SetCallsign(callsign string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if callsign == "" {
			return b.Delete(keyCallsign)
		}
		return b.Put(keyCallsign, []byte(callsign))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
