// Package session tracks the single in-flight processing journey across
// process restarts.
//
// The bridge carries the session identifier and the uploaded image
// reference between the submission step and the result step, the way the
// browser frontend survived a full page navigation. At most one journey
// is tracked: starting a new job overwrites the previous entry. The store
// is injected explicitly wherever it is needed; there is no package-level
// singleton.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/climbinsight/climbinsight-go/pkg/types"
)

// entryKey is the single key the bridge owns
var entryKey = []byte("session/current")

// entryTTL matches the backend's session retention window
const entryTTL = time.Hour

// ErrNoEntry means no journey is currently tracked
var ErrNoEntry = errors.New("no session entry")

// Config holds store configuration
type Config struct {
	// Path is the directory for the store's files. Ignored in memory mode.
	Path string

	// InMemory disables disk persistence. Used by tests.
	InMemory bool

	// Logger for store operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the durable single-entry session bridge
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates the store at cfg.Path, or in memory when cfg.InMemory is
// set. Callers must Close the store when done.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("session store path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	// The bridge holds one tiny entry; badger's own chatter is noise here
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Set records a new in-flight journey, overwriting any previous entry.
// The identifier is stored verbatim; it is later used to open the result
// stream without any transformation.
func (s *Store) Set(sessionID, imageRef string) error {
	if sessionID == "" {
		return fmt.Errorf("session identifier is required")
	}

	entry := types.SessionEntry{SessionID: sessionID, ImageRef: imageRef}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode session entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(entryKey, data).WithTTL(entryTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to store session entry: %w", err)
	}

	s.logger.Info("session stored", "session", sessionID)
	return nil
}

// Get returns the tracked journey, or ErrNoEntry
func (s *Store) Get() (*types.SessionEntry, error) {
	var entry types.SessionEntry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session entry: %w", err)
	}
	return &entry, nil
}

// SessionID returns the tracked session identifier, or "" when none is
// tracked
func (s *Store) SessionID() string {
	entry, err := s.Get()
	if err != nil {
		return ""
	}
	return entry.SessionID
}

// ImageRef returns the tracked image reference, or "" when none is
// tracked
func (s *Store) ImageRef() string {
	entry, err := s.Get()
	if err != nil {
		return ""
	}
	return entry.ImageRef
}

// Clear drops the tracked journey. Clearing an empty store is not an
// error.
func (s *Store) Clear() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey)
	})
	if err != nil {
		return fmt.Errorf("failed to clear session entry: %w", err)
	}
	s.logger.Info("session cleared")
	return nil
}
