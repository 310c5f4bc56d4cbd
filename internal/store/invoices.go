package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/events"
	"github.com/lherron/partymerge/internal/id"
)

var invoiceColumns = []string{"id", "number", "party_id", "invoice_address_id", "state", "amount_cents", "posted_at"}

// InvoiceStore handles invoice-related database operations
type InvoiceStore struct {
	store *Store
}

// InvoiceCreateParams contains parameters for creating an invoice
type InvoiceCreateParams struct {
	Number           string // generated when empty
	PartyID          int64
	InvoiceAddressID *int64
	AmountCents      int64
}

// Create inserts a draft invoice
func (is *InvoiceStore) Create(ctx context.Context, actor string, params InvoiceCreateParams) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := is.store.withTx(ctx, func(tx *sqlx.Tx, ew *events.Writer) error {
		if err := requireActive(ctx, tx, params.PartyID); err != nil {
			return err
		}

		number := params.Number
		if number == "" {
			var next int64
			if err := tx.GetContext(ctx, &next, "SELECT coalesce(max(id), 0) + 1 FROM invoice"); err != nil {
				return fmt.Errorf("failed to allocate invoice number: %w", err)
			}
			number = id.FormatInvoice(next)
		}

		ib := newInsert("invoice")
		ib.Cols("number", "party_id", "invoice_address_id", "state", "amount_cents")
		ib.Values(number, params.PartyID, params.InvoiceAddressID, string(domain.InvoiceStateDraft), params.AmountCents)

		query, args := ib.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		invoiceID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get invoice id: %w", err)
		}

		invoice, err = getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		return ew.LogInvoiceCreated(ctx, actor, invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// Get returns an invoice by identity
func (is *InvoiceStore) Get(ctx context.Context, invoiceID int64) (*domain.Invoice, error) {
	return getInvoice(ctx, is.store.db, invoiceID)
}

func getInvoice(ctx context.Context, q sqlx.QueryerContext, invoiceID int64) (*domain.Invoice, error) {
	sb := newSelect()
	sb.Select(invoiceColumns...).From("invoice").Where(sb.Equal("id", invoiceID))

	query, args := sb.Build()
	var inv domain.Invoice
	if err := sqlx.GetContext(ctx, q, &inv, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice not found: %d", invoiceID)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

// Post moves a draft invoice to posted. Posted invoices keep pointing at
// whichever party they were issued to until a merge moves them.
func (is *InvoiceStore) Post(ctx context.Context, actor string, invoiceID int64) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := is.store.withTx(ctx, func(tx *sqlx.Tx, ew *events.Writer) error {
		ub := newUpdate("invoice")
		ub.Set(
			ub.Assign("state", string(domain.InvoiceStatePosted)),
			ub.Assign("posted_at", time.Now().UTC().Format(time.RFC3339)),
		)
		ub.Where(ub.Equal("id", invoiceID), ub.Equal("state", string(domain.InvoiceStateDraft)))

		query, args := ub.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to post invoice: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("invoice %d not found or not a draft", invoiceID)
		}

		invoice, err = getInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		return ew.LogInvoicePosted(ctx, actor, invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListForParty returns the invoices issued to a party
func (is *InvoiceStore) ListForParty(ctx context.Context, partyID int64) ([]domain.Invoice, error) {
	sb := newSelect()
	sb.Select(invoiceColumns...).From("invoice").Where(sb.Equal("party_id", partyID)).OrderBy("id")

	query, args := sb.Build()
	invoices := []domain.Invoice{}
	if err := is.store.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}
