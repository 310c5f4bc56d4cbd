package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/events"
)

var addressColumns = []string{"id", "party_id", "name", "street", "city", "zip", "country", "active"}

// AddressStore handles address-related database operations
type AddressStore struct {
	store *Store
}

// AddressCreateParams contains parameters for creating an address
type AddressCreateParams struct {
	PartyID int64
	Name    *string
	Street  *string
	City    *string
	Zip     *string
	Country *string
}

// Create inserts a new address for an active party
func (as *AddressStore) Create(ctx context.Context, actor string, params AddressCreateParams) (*domain.Address, error) {
	var address *domain.Address
	err := as.store.withTx(ctx, func(tx *sqlx.Tx, ew *events.Writer) error {
		if err := requireActive(ctx, tx, params.PartyID); err != nil {
			return err
		}

		ib := newInsert("address")
		ib.Cols("party_id", "name", "street", "city", "zip", "country")
		ib.Values(params.PartyID, params.Name, params.Street, params.City, params.Zip, params.Country)

		query, args := ib.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert address: %w", err)
		}
		addressID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get address id: %w", err)
		}

		sb := newSelect()
		sb.Select(addressColumns...).From("address").Where(sb.Equal("id", addressID))
		query, args = sb.Build()
		address = &domain.Address{}
		if err := tx.GetContext(ctx, address, query, args...); err != nil {
			return fmt.Errorf("failed to read address: %w", err)
		}
		return ew.LogAddressCreated(ctx, actor, address)
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

// Get returns an address by identity
func (as *AddressStore) Get(ctx context.Context, addressID int64) (*domain.Address, error) {
	sb := newSelect()
	sb.Select(addressColumns...).From("address").Where(sb.Equal("id", addressID))

	query, args := sb.Build()
	var a domain.Address
	if err := as.store.db.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("address not found: %d", addressID)
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &a, nil
}

// ListForParty returns the addresses owned by a party
func (as *AddressStore) ListForParty(ctx context.Context, partyID int64) ([]domain.Address, error) {
	sb := newSelect()
	sb.Select(addressColumns...).From("address").Where(sb.Equal("party_id", partyID)).OrderBy("id")

	query, args := sb.Build()
	addresses := []domain.Address{}
	if err := as.store.db.SelectContext(ctx, &addresses, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addresses, nil
}

// HistoryForParty returns every recorded address version that names the
// party as owner, oldest first.
func (as *AddressStore) HistoryForParty(ctx context.Context, partyID int64) ([]domain.AddressHistory, error) {
	sb := newSelect()
	sb.Select("history_id", "id", "party_id", "name", "street", "city", "zip", "country", "active", "recorded_at").
		From("address_history").
		Where(sb.Equal("party_id", partyID)).
		OrderBy("history_id")

	query, args := sb.Build()
	rows := []domain.AddressHistory{}
	if err := as.store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get address history: %w", err)
	}
	return rows, nil
}
