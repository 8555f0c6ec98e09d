package lifecycle

import (
	"testing"

	"rcf-audit-service/internal/models"
)

func event(code string) *models.StateChangeEvent {
	if code == "" {
		return &models.StateChangeEvent{}
	}
	return &models.StateChangeEvent{StateCode: models.NewString(code)}
}

func TestDistribution(t *testing.T) {
	events := []*models.StateChangeEvent{
		event("1300"), event("1300"), event("2400"), event("9999"), event(""),
	}

	result := Distribution(events, true)
	if !result.Available {
		t.Fatal("distribution must be available")
	}
	if result.Total != 5 || result.NoCode != 1 {
		t.Fatalf("total=%d no_code=%d, want 5/1", result.Total, result.NoCode)
	}
	if len(result.States) != 3 {
		t.Fatalf("expected 3 distinct codes, got %d", len(result.States))
	}

	if result.States[0].Code != "1300" || result.States[0].Count != 2 {
		t.Errorf("unexpected first state: %+v", result.States[0])
	}
	if result.States[0].Label != "Registered in RCF" {
		t.Errorf("known code must carry its label, got %q", result.States[0].Label)
	}

	// Unknown codes survive verbatim.
	if result.States[2].Code != "9999" || result.States[2].Label != "9999" {
		t.Errorf("unknown code not preserved: %+v", result.States[2])
	}
}

func TestDistributionUnavailable(t *testing.T) {
	result := Distribution(nil, false)
	if result.Available {
		t.Error("distribution without a source must be unavailable")
	}
}

func TestStateLabel(t *testing.T) {
	// The codes follow the gateway's numbering: 2400 is an accounting
	// state, rejection is 2600 and cancellation 3100.
	tests := []struct {
		code string
		want string
	}{
		{"1400", "Verified in RCF"},
		{"2100", "Received at destination"},
		{"2300", "Approved"},
		{"2400", "Obligation accounted"},
		{"2500", "Paid"},
		{"2600", "Rejected"},
		{"3100", "Canceled"},
	}
	for _, tt := range tests {
		if got := StateLabel(tt.code); got != tt.want {
			t.Errorf("StateLabel(%s) = %q, want %q", tt.code, got, tt.want)
		}
	}
	if StateLabel("0000") != "0000" {
		t.Errorf("unknown code must map to itself, got %q", StateLabel("0000"))
	}
}
