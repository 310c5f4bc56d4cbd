package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lherron/partymerge/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	exec sqlx.ExecerContext
}

// NewWriter creates a new event writer. Pass the transaction the change is
// made in so the event commits or rolls back with it.
func NewWriter(exec sqlx.ExecerContext) *Writer {
	return &Writer{exec: exec}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(ctx context.Context, event *domain.Event) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("event_log")
	ib.Cols("actor", "resource_type", "resource_id", "event_type", "payload")
	ib.Values(event.Actor, event.ResourceType, event.ResourceID, event.EventType, event.Payload)

	query, args := ib.Build()
	if _, err := w.exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

func (w *Writer) log(ctx context.Context, actor, resourceType string, resourceID int64, eventType string, payload map[string]interface{}) error {
	event := &domain.Event{
		ResourceType: resourceType,
		EventType:    eventType,
	}
	if actor != "" {
		event.Actor = &actor
	}
	id := strconv.FormatInt(resourceID, 10)
	event.ResourceID = &id

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		s := string(data)
		event.Payload = &s
	}

	return w.LogEvent(ctx, event)
}

// LogPartyCreated logs a party creation event
func (w *Writer) LogPartyCreated(ctx context.Context, actor string, party *domain.Party) error {
	return w.log(ctx, actor, "party", party.ID, "party.created", map[string]interface{}{
		"name": party.Name,
	})
}

// LogPartyUpdated logs a party update event
func (w *Writer) LogPartyUpdated(ctx context.Context, actor string, partyID int64, changes map[string]interface{}) error {
	return w.log(ctx, actor, "party", partyID, "party.updated", changes)
}

// LogPartyMerged logs that a duplicate was merged into a target
func (w *Writer) LogPartyMerged(ctx context.Context, actor string, duplicate, target int64, runID string, policy domain.MergePolicy, rows int64) error {
	return w.log(ctx, actor, "party", duplicate, "party.merged", map[string]interface{}{
		"target":         target,
		"run_id":         runID,
		"policy":         policy,
		"rows_rewritten": rows,
	})
}

// LogPartyDeleted logs a party deletion event
func (w *Writer) LogPartyDeleted(ctx context.Context, actor string, partyID int64) error {
	return w.log(ctx, actor, "party", partyID, "party.deleted", nil)
}

// LogAddressCreated logs an address creation event
func (w *Writer) LogAddressCreated(ctx context.Context, actor string, address *domain.Address) error {
	return w.log(ctx, actor, "address", address.ID, "address.created", map[string]interface{}{
		"party_id": address.PartyID,
	})
}

// LogInvoiceCreated logs an invoice creation event
func (w *Writer) LogInvoiceCreated(ctx context.Context, actor string, invoice *domain.Invoice) error {
	return w.log(ctx, actor, "invoice", invoice.ID, "invoice.created", map[string]interface{}{
		"number":       invoice.Number,
		"party_id":     invoice.PartyID,
		"amount_cents": invoice.AmountCents,
	})
}

// LogInvoicePosted logs an invoice posting event
func (w *Writer) LogInvoicePosted(ctx context.Context, actor string, invoice *domain.Invoice) error {
	return w.log(ctx, actor, "invoice", invoice.ID, "invoice.posted", map[string]interface{}{
		"number": invoice.Number,
	})
}

// LogCategoryAssigned logs a category being attached to a party
func (w *Writer) LogCategoryAssigned(ctx context.Context, actor string, partyID, categoryID int64) error {
	return w.log(ctx, actor, "party", partyID, "party.category_assigned", map[string]interface{}{
		"category_id": categoryID,
	})
}
