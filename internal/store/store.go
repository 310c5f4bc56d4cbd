// Package store provides a persistence layer that abstracts database operations,
// running every mutation in a transaction together with its event log entry.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lherron/partymerge/internal/db"
	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/events"
	"github.com/lherron/partymerge/internal/schema"
)

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db      *db.DB
	logger  *zap.Logger
	overlay *schema.Overlay
	policy  domain.MergePolicy

	regMu    sync.Mutex
	registry *schema.Registry

	// Domain-specific stores
	Parties    *PartyStore
	Addresses  *AddressStore
	Invoices   *InvoiceStore
	Categories *CategoryStore
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger handed down to the merge core.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOverlay layers a static schema description over the reflected one.
func WithOverlay(overlay *schema.Overlay) Option {
	return func(s *Store) { s.overlay = overlay }
}

// WithMergePolicy sets the policy used when a merge request names none.
func WithMergePolicy(policy domain.MergePolicy) Option {
	return func(s *Store) {
		if policy != "" {
			s.policy = policy
		}
	}
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB, opts ...Option) *Store {
	s := &Store{
		db:     database,
		logger: zap.NewNop(),
		policy: domain.MergePolicySoft,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Parties = &PartyStore{store: s}
	s.Addresses = &AddressStore{store: s}
	s.Invoices = &InvoiceStore{store: s}
	s.Categories = &CategoryStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Registry returns the entity type registry, reflecting the schema on
// first use.
func (s *Store) Registry(ctx context.Context) (*schema.Registry, error) {
	s.regMu.Lock()
	defer s.regMu.Unlock()

	if s.registry != nil {
		return s.registry, nil
	}
	reg, err := schema.Load(ctx, s.db, s.overlay)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema registry: %w", err)
	}
	s.registry = reg
	return reg, nil
}

// ReloadRegistry drops the cached registry, e.g. after a migration.
func (s *Store) ReloadRegistry() {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.registry = nil
}

// Events returns the most recent events, newest first. A non-empty
// resourceID restricts the list to one resource.
func (s *Store) Events(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.Event, error) {
	sb := newSelect()
	sb.Select("id", "timestamp", "actor", "resource_type", "resource_id", "event_type", "payload")
	sb.From("event_log")
	if resourceType != "" {
		sb.Where(sb.Equal("resource_type", resourceType))
	}
	if resourceID != "" {
		sb.Where(sb.Equal("resource_id", resourceID))
	}
	sb.OrderBy("id").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	events := []domain.Event{}
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx, ew *events.Writer) error) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(tx, events.NewWriter(tx))
	})
}
