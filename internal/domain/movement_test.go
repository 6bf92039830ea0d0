package domain

import "testing"

func TestNewMovementNormalizesSign(t *testing.T) {
	tests := []struct {
		name       string
		kind       MovementKind
		value      int
		wantAmount int
		wantDelta  int
	}{
		{"add positive", MovementAdd, 10, 10, 10},
		{"add negative input", MovementAdd, -10, 10, 10},
		{"consume positive input", MovementConsume, 5, 5, -5},
		{"consume negative input", MovementConsume, -5, 5, -5},
		{"expire", MovementExpire, 7, 7, -7},
		{"refund", MovementRefund, -3, 3, 3},
		{"renew", MovementRenew, 12, 12, 12},
		{"zero", MovementConsume, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMovement(tt.kind, tt.value, "test")
			if m.Amount != tt.wantAmount {
				t.Errorf("Amount = %d, want %d", m.Amount, tt.wantAmount)
			}
			if m.Delta != tt.wantDelta {
				t.Errorf("Delta = %d, want %d", m.Delta, tt.wantDelta)
			}
		})
	}
}

func TestNewMovementDefaultDescription(t *testing.T) {
	m := NewMovement(MovementConsume, 1, "")
	if m.Description != DefaultConsumeDescription {
		t.Errorf("Description = %q, want %q", m.Description, DefaultConsumeDescription)
	}

	m = NewMovement(MovementConsume, 1, "booking fee")
	if m.Description != "booking fee" {
		t.Errorf("Description = %q, want %q", m.Description, "booking fee")
	}
}

func TestMovementTarget(t *testing.T) {
	m := NewMovement(MovementConsume, 2, "").WithTarget("booking", "B1")
	if !m.HasTarget() {
		t.Error("expected movement to have a target")
	}
	if !m.MatchesTarget("booking", "B1") {
		t.Error("expected target to match")
	}
	if m.MatchesTarget("booking", "B2") {
		t.Error("did not expect target to match a different id")
	}

	// An empty pair means untargeted
	untargeted := NewMovement(MovementConsume, 2, "")
	if untargeted.HasTarget() {
		t.Error("expected movement without target")
	}
}

func TestMovementKindValid(t *testing.T) {
	for _, kind := range []MovementKind{MovementAdd, MovementConsume, MovementExpire, MovementRefund, MovementRenew} {
		if !kind.Valid() {
			t.Errorf("expected %s to be valid", kind)
		}
	}
	if MovementKind("TRANSFER").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}
