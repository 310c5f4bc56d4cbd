package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	partyCodePattern   = regexp.MustCompile(`^(?i)PTY-(\d{5,})$`)
	invoiceCodePattern = regexp.MustCompile(`^(?i)INV-(\d{5,})$`)
	numericPattern     = regexp.MustCompile(`^\d+$`)
)

// Type represents the type of resource
type Type string

const (
	TypeParty   Type = "party"
	TypeInvoice Type = "invoice"
)

// FormatParty formats a party code
func FormatParty(id int64) string {
	return fmt.Sprintf("PTY-%05d", id)
}

// FormatInvoice formats an invoice number
func FormatInvoice(seq int64) string {
	return fmt.Sprintf("INV-%05d", seq)
}

// Parse parses a code and returns the type and sequence number
func Parse(code string) (Type, int64, error) {
	code = strings.TrimSpace(code)

	switch {
	case partyCodePattern.MatchString(code):
		n, err := strconv.ParseInt(partyCodePattern.FindStringSubmatch(code)[1], 10, 64)
		return TypeParty, n, err
	case invoiceCodePattern.MatchString(code):
		n, err := strconv.ParseInt(invoiceCodePattern.FindStringSubmatch(code)[1], 10, 64)
		return TypeInvoice, n, err
	default:
		return "", 0, fmt.Errorf("invalid code format: %s", code)
	}
}

// ParseParty accepts a party code (PTY-00042) or a bare identity (42).
func ParseParty(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if numericPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid party identity: %s", s)
		}
		return n, nil
	}
	typ, n, err := Parse(s)
	if err != nil || typ != TypeParty {
		return 0, fmt.Errorf("invalid party identity: %s", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid party identity: %s", s)
	}
	return n, nil
}

// IsPartyRef checks if a string looks like a party code or identity
func IsPartyRef(s string) bool {
	_, err := ParseParty(s)
	return err == nil
}
