package domain

import (
	"testing"
)

func TestEvent_GetPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload *string
		want    int
		wantErr bool
	}{
		{name: "nil payload", payload: nil, want: 0},
		{name: "empty string", payload: stringPtr(""), want: 0},
		{name: "object", payload: stringPtr(`{"target":1,"run_id":"abc"}`), want: 2},
		{name: "invalid json", payload: stringPtr(`{"target":`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{Payload: tt.payload}
			got, err := e.GetPayload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.want {
				t.Errorf("GetPayload() returned %d keys, want %d", len(got), tt.want)
			}
		})
	}
}

func TestInvoice_FormatAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{1250, "12.50"},
		{100000, "1000.00"},
		{-199, "-1.99"},
	}

	for _, tt := range tests {
		inv := &Invoice{AmountCents: tt.cents}
		if got := inv.FormatAmount(); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func stringPtr(s string) *string {
	return &s
}
