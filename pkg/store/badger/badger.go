// Package badger implements store.Storage on an embedded BadgerDB. Records
// are JSON values; every list operation reads a dedicated summary prefix.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/logger"
	"github.com/OFFIS-RIT/caseboard/backend/pkg/store"

	"github.com/dgraph-io/badger/v4"
)

const (
	prefixInvestigation      = "inv/"
	prefixInvestigationIndex = "idx/inv/"
	prefixConversation       = "conv/"
	prefixConversationIndex  = "idx/conv/"
	keySettings              = "settings"
	keyActiveInvestigation   = "active"

	maxConflictRetries = 3
)

type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// GCInterval is how often the value log is garbage collected. Zero
	// disables collection.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is a store.Storage backed by BadgerDB.
type Store struct {
	db  *badger.DB
	now func() time.Time

	stop chan struct{}
	done chan struct{}
}

// badgerLogger forwards badger's internal logging to the package logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error("[Store] " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn("[Store] " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...any) {
	logger.Debug("[Store] " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(string, ...any) {}

func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

func (s *Store) Close() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	return s.db.Close()
}

func (s *Store) gcLoop(interval time.Duration, ratio float64) {
	defer close(s.done)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logger.Warn("[Store] Value log GC failed", "err", err)
			}
		}
	}
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		logger.Debug("[Store] Transaction conflict, retrying")
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scan decodes every value under prefix into a fresh T.
func scan[T any](txn *badger.Txn, prefix string) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	out := []T{}
	for it.Rewind(); it.Valid(); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func conversationIndexKey(investigationID, id string) string {
	return prefixConversationIndex + investigationID + "/" + id
}

func (s *Store) GetInvestigation(ctx context.Context, id string) (*common.Investigation, error) {
	var inv common.Investigation
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixInvestigation+id, &inv)
	})
	if err != nil {
		return nil, fmt.Errorf("get investigation %s: %w", id, err)
	}
	inv.Normalize()
	return &inv, nil
}

func (s *Store) SaveInvestigation(ctx context.Context, inv *common.Investigation) error {
	if inv == nil || inv.ID == "" {
		return errors.New("investigation id is required")
	}
	store.PrepareInvestigation(inv, s.now())

	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixInvestigation+inv.ID, inv); err != nil {
			return err
		}
		return setJSON(txn, prefixInvestigationIndex+inv.ID, inv.Summary())
	})
	if err != nil {
		return fmt.Errorf("save investigation %s: %w", inv.ID, err)
	}
	return nil
}

func (s *Store) ListInvestigations(ctx context.Context) ([]common.InvestigationSummary, error) {
	var out []common.InvestigationSummary
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = scan[common.InvestigationSummary](txn, prefixInvestigationIndex)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	store.SortInvestigationSummaries(out)
	return out, nil
}

func (s *Store) DeleteInvestigation(ctx context.Context, id string) error {
	removed := 0
	err := s.update(ctx, func(txn *badger.Txn) error {
		removed = 0
		ok, err := exists(txn, prefixInvestigation+id)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}

		convs, err := scan[common.ConversationSummary](txn, prefixConversationIndex+id+"/")
		if err != nil {
			return err
		}
		for _, c := range convs {
			if err := txn.Delete([]byte(prefixConversation + c.ID)); err != nil {
				return err
			}
			if err := txn.Delete([]byte(conversationIndexKey(id, c.ID))); err != nil {
				return err
			}
			removed++
		}

		var active string
		if err := getJSON(txn, keyActiveInvestigation, &active); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if active == id {
			if err := txn.Delete([]byte(keyActiveInvestigation)); err != nil {
				return err
			}
		}

		if err := txn.Delete([]byte(prefixInvestigation + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixInvestigationIndex + id))
	})
	if err != nil {
		return fmt.Errorf("delete investigation %s: %w", id, err)
	}
	logger.Debug("[Store] Investigation deleted", "investigation", id, "conversations", removed)
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*common.Conversation, error) {
	var conv common.Conversation
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixConversation+id, &conv)
	})
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []*common.Message{}
	}
	return &conv, nil
}

func (s *Store) SaveConversation(ctx context.Context, conv *common.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation id is required")
	}
	store.PrepareConversation(conv, s.now())

	err := s.update(ctx, func(txn *badger.Txn) error {
		var prev common.Conversation
		err := getJSON(txn, prefixConversation+conv.ID, &prev)
		switch {
		case err == nil && prev.InvestigationID != conv.InvestigationID:
			if err := txn.Delete([]byte(conversationIndexKey(prev.InvestigationID, prev.ID))); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}

		if err := setJSON(txn, prefixConversation+conv.ID, conv); err != nil {
			return err
		}
		return setJSON(txn, conversationIndexKey(conv.InvestigationID, conv.ID), conv.Summary())
	})
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, investigationID string) ([]common.ConversationSummary, error) {
	prefix := prefixConversationIndex
	if investigationID != "" {
		prefix += investigationID + "/"
	}

	var out []common.ConversationSummary
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = scan[common.ConversationSummary](txn, prefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	store.SortConversationSummaries(out)
	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var conv common.Conversation
		if err := getJSON(txn, prefixConversation+id, &conv); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixConversation + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(conversationIndexKey(conv.InvestigationID, id)))
	})
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context) (common.Settings, error) {
	var settings common.Settings
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, keySettings, &settings)
	})
	if errors.Is(err, store.ErrNotFound) {
		return common.DefaultSettings(), nil
	}
	if err != nil {
		return common.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings common.Settings) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, keySettings, settings)
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store) GetActiveInvestigationID(ctx context.Context) (string, error) {
	var id string
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, keyActiveInvestigation, &id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active investigation: %w", err)
	}
	return id, nil
}

func (s *Store) SetActiveInvestigationID(ctx context.Context, id string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if id == "" {
			return txn.Delete([]byte(keyActiveInvestigation))
		}
		return setJSON(txn, keyActiveInvestigation, id)
	})
	if err != nil {
		return fmt.Errorf("set active investigation: %w", err)
	}
	return nil
}

var _ store.Storage = (*Store)(nil)
