// Package store provides storage backends for request receipts.
//
// Receipts carry request metadata only. The in-memory store is the default;
// SQLite and PostgreSQL are selected by DSN.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// Supported DSN types, named after their database/sql drivers.
const (
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
)

// Store persists receipts and returns them in insertion order.
type Store interface {
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	// PruneReceipts deletes receipts whose Time is before the given unix
	// second and reports how many were removed.
	PruneReceipts(before int64) (int, error)
	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN  string
	Type string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given file path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Type = DSNTypeSQLite
	}
}

// WithPostgresDSN selects the PostgreSQL backend with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Type = DSNTypePostgres
	}
}

// DetectDSNType reports "postgres" for PostgreSQL URLs and key/value
// connection strings, and "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// New builds the store selected by opts, or an in-memory store when no DSN is set.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		slog.Debug("store.New: no DSN, using in-memory store")
		return NewInMemoryStore(), nil
	case cfg.Type == DSNTypePostgres:
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

// InMemoryStore is a simple in-memory store for receipts.
type InMemoryStore struct {
	mu       sync.RWMutex
	receipts []models.Receipt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

// GetReceipts returns a copy of the stored receipts.
func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

func (s *InMemoryStore) PruneReceipts(before int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.receipts[:0]
	for _, r := range s.receipts {
		if r.Time >= before {
			kept = append(kept, r)
		}
	}
	removed := len(s.receipts) - len(kept)
	clear(s.receipts[len(kept):])
	s.receipts = kept
	return removed, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
