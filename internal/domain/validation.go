package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
)

var validate = validator.New()

// MergeRequest is what the interactive flows hand to the merge core: the
// duplicates picked by the user and the party that survives them.
type MergeRequest struct {
	Duplicates []int64     `json:"duplicates" validate:"required,min=1,unique,dive,gt=0"`
	Target     int64       `json:"target" validate:"required,gt=0"`
	Policy     MergePolicy `json:"policy,omitempty" validate:"omitempty,oneof=soft hard"`
	DryRun     bool        `json:"dry_run,omitempty"`
}

// Validate checks the request shape and rejects a target that is also
// listed as a duplicate. It does not touch the database.
func (r *MergeRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.NewNotValid(err, "invalid merge request")
	}
	for _, d := range r.Duplicates {
		if d == r.Target {
			return errors.NewNotValid(nil, fmt.Sprintf("target party %d is also listed as a duplicate", r.Target))
		}
	}
	return nil
}

// ParseMergePolicy parses a policy name; empty means soft.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MergePolicySoft:
		return MergePolicySoft, nil
	case MergePolicyHard:
		return MergePolicyHard, nil
	default:
		return "", errors.NewNotValid(nil, fmt.Sprintf("invalid merge policy %q: must be one of: soft, hard", s))
	}
}

// ValidateInvoiceState validates an invoice state
func ValidateInvoiceState(state string) error {
	switch InvoiceState(state) {
	case InvoiceStateDraft, InvoiceStatePosted:
		return nil
	default:
		return fmt.Errorf("invalid invoice state: must be one of: draft, posted")
	}
}

// ValidatePartyName rejects blank names
func ValidatePartyName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewNotValid(nil, "party name must not be empty")
	}
	return nil
}

// PartyNotFoundError is returned when a selector or identity does not
// resolve to a party visible to default searches.
type PartyNotFoundError struct {
	Selector string
}

func (e *PartyNotFoundError) Error() string {
	return fmt.Sprintf("party not found: %s", e.Selector)
}

// Is lets errors.Is(err, errors.NotFound) match a missing party.
func (e *PartyNotFoundError) Is(target error) bool {
	return target == errors.NotFound
}
