package domain

import (
	"encoding/json"
	"fmt"
)

// PartyEntity is the entity type (table) name of parties.
const PartyEntity = "party"

// MergePolicy selects how a duplicate is finalized after its references
// have been moved to the target.
type MergePolicy string

const (
	// MergePolicySoft deactivates the duplicate and keeps its row.
	MergePolicySoft MergePolicy = "soft"
	// MergePolicyHard deletes the duplicate row.
	MergePolicyHard MergePolicy = "hard"
)

// InvoiceState represents the lifecycle state of an invoice
type InvoiceState string

const (
	InvoiceStateDraft  InvoiceState = "draft"
	InvoiceStatePosted InvoiceState = "posted"
)

// Party represents a person or organization record
type Party struct {
	ID          int64   `json:"id" yaml:"id" db:"id"`
	Name        string  `json:"name" yaml:"name" db:"name"`
	Email       *string `json:"email,omitempty" yaml:"email,omitempty" db:"email"`
	Phone       *string `json:"phone,omitempty" yaml:"phone,omitempty" db:"phone"`
	Active      bool    `json:"active" yaml:"active" db:"active"`
	DisplayName string  `json:"display_name" yaml:"display_name" db:"display_name"`
	CreateDate  string  `json:"create_date" yaml:"create_date" db:"create_date"`
	WriteDate   string  `json:"write_date" yaml:"write_date" db:"write_date"`
}

// PartyHistory is one recorded version of a party row
type PartyHistory struct {
	HistoryID  int64   `json:"history_id" db:"history_id"`
	ID         int64   `json:"id" db:"id"`
	Name       *string `json:"name,omitempty" db:"name"`
	Email      *string `json:"email,omitempty" db:"email"`
	Phone      *string `json:"phone,omitempty" db:"phone"`
	Active     *bool   `json:"active,omitempty" db:"active"`
	RecordedAt string  `json:"recorded_at" db:"recorded_at"`
}

// Address represents a postal address owned by a party
type Address struct {
	ID      int64   `json:"id" yaml:"id" db:"id"`
	PartyID int64   `json:"party_id" yaml:"party_id" db:"party_id"`
	Name    *string `json:"name,omitempty" yaml:"name,omitempty" db:"name"`
	Street  *string `json:"street,omitempty" yaml:"street,omitempty" db:"street"`
	City    *string `json:"city,omitempty" yaml:"city,omitempty" db:"city"`
	Zip     *string `json:"zip,omitempty" yaml:"zip,omitempty" db:"zip"`
	Country *string `json:"country,omitempty" yaml:"country,omitempty" db:"country"`
	Active  bool    `json:"active" yaml:"active" db:"active"`
}

// AddressHistory is one recorded version of an address row
type AddressHistory struct {
	HistoryID  int64   `json:"history_id" db:"history_id"`
	ID         int64   `json:"id" db:"id"`
	PartyID    *int64  `json:"party_id,omitempty" db:"party_id"`
	Name       *string `json:"name,omitempty" db:"name"`
	Street     *string `json:"street,omitempty" db:"street"`
	City       *string `json:"city,omitempty" db:"city"`
	Zip        *string `json:"zip,omitempty" db:"zip"`
	Country    *string `json:"country,omitempty" db:"country"`
	Active     *bool   `json:"active,omitempty" db:"active"`
	RecordedAt string  `json:"recorded_at" db:"recorded_at"`
}

// Invoice represents a customer invoice
type Invoice struct {
	ID               int64        `json:"id" yaml:"id" db:"id"`
	Number           string       `json:"number" yaml:"number" db:"number"`
	PartyID          int64        `json:"party_id" yaml:"party_id" db:"party_id"`
	InvoiceAddressID *int64       `json:"invoice_address_id,omitempty" yaml:"invoice_address_id,omitempty" db:"invoice_address_id"`
	State            InvoiceState `json:"state" yaml:"state" db:"state"`
	AmountCents      int64        `json:"amount_cents" yaml:"amount_cents" db:"amount_cents"`
	PostedAt         *string      `json:"posted_at,omitempty" yaml:"posted_at,omitempty" db:"posted_at"`
}

// Category is a label that can be attached to many parties
type Category struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// MergeRecord is one row of the party_merges audit trail
type MergeRecord struct {
	ID            int64       `json:"id" db:"id"`
	RunID         string      `json:"run_id" db:"run_id"`
	DuplicateID   int64       `json:"duplicate_id" db:"duplicate_id"`
	TargetID      int64       `json:"target_id" db:"target_id"`
	Policy        MergePolicy `json:"policy" db:"policy"`
	RowsRewritten int64       `json:"rows_rewritten" db:"rows_rewritten"`
	MergedBy      *string     `json:"merged_by,omitempty" db:"merged_by"`
	CreatedAt     string      `json:"created_at" db:"created_at"`
}

// Event represents an event in the event log
type Event struct {
	ID           int64   `json:"id" db:"id"`
	Timestamp    string  `json:"timestamp" db:"timestamp"`
	Actor        *string `json:"actor,omitempty" db:"actor"`
	ResourceType string  `json:"resource_type" db:"resource_type"`
	ResourceID   *string `json:"resource_id,omitempty" db:"resource_id"`
	EventType    string  `json:"event_type" db:"event_type"`
	Payload      *string `json:"payload,omitempty" db:"payload"` // JSON
}

// GetPayload parses the payload JSON into a map
func (e *Event) GetPayload() (map[string]interface{}, error) {
	if e.Payload == nil || *e.Payload == "" {
		return map[string]interface{}{}, nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(*e.Payload), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FormatAmount renders cents as a decimal amount
func (i *Invoice) FormatAmount() string {
	sign := ""
	cents := i.AmountCents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
