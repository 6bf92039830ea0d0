package domain

import "github.com/google/uuid"

// MovementKind identifies the kind of change a movement applies to a credit.
type MovementKind string

const (
	MovementAdd     MovementKind = "ADD"
	MovementConsume MovementKind = "CONSUME"
	MovementExpire  MovementKind = "EXPIRE"
	MovementRefund  MovementKind = "REFUND"
	MovementRenew   MovementKind = "RENEW"
)

// IsDebit reports whether the kind reduces a credit's remaining value.
func (k MovementKind) IsDebit() bool {
	return k == MovementConsume || k == MovementExpire
}

// Valid reports whether the kind is one of the supported movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementAdd, MovementConsume, MovementExpire, MovementRefund, MovementRenew:
		return true
	}
	return false
}

// Default operation descriptions, used when the caller passes none.
const (
	DefaultAddDescription     = "Credits added"
	DefaultConsumeDescription = "Credits consumed"
	DefaultExpireDescription  = "Credits expired"
	DefaultRefundDescription  = "Credits refunded"
	DefaultRenewDescription   = "Credits renewed"
)

// DefaultDescription returns the default human-readable label for the kind.
func (k MovementKind) DefaultDescription() string {
	switch k {
	case MovementAdd:
		return DefaultAddDescription
	case MovementConsume:
		return DefaultConsumeDescription
	case MovementExpire:
		return DefaultExpireDescription
	case MovementRefund:
		return DefaultRefundDescription
	case MovementRenew:
		return DefaultRenewDescription
	}
	return ""
}

// Movement is a single signed change to one credit. It is appended to the
// credit's movement list and never edited afterwards. Amount holds the
// magnitude; Delta carries the sign: negative for CONSUME/EXPIRE, positive
// for ADD/REFUND/RENEW.
type Movement struct {
	ID          *uuid.UUID // assigned on first persistence
	OperationID *uuid.UUID // the logical operation this movement belongs to
	Kind        MovementKind
	Amount      int
	Delta       int
	Description string
	TargetType  string
	TargetID    string
}

// NewMovement builds a movement of the given kind, normalizing the sign of
// value: the stored Amount is always the magnitude and Delta carries the
// sign implied by the kind, regardless of the sign the caller supplied.
func NewMovement(kind MovementKind, value int, description string) Movement {
	amount := value
	if amount < 0 {
		amount = -amount
	}
	delta := amount
	if kind.IsDebit() {
		delta = -amount
	}
	if description == "" {
		description = kind.DefaultDescription()
	}
	return Movement{
		Kind:        kind,
		Amount:      amount,
		Delta:       delta,
		Description: description,
	}
}

// WithTarget returns a copy of the movement tagged with the external object
// it refers to. Only CONSUME and REFUND movements carry targets.
func (m Movement) WithTarget(targetType, targetID string) Movement {
	m.TargetType = targetType
	m.TargetID = targetID
	return m
}

// HasTarget reports whether the movement references an external object.
// Targets are compared as plain strings; an empty pair means "untargeted".
func (m Movement) HasTarget() bool {
	return m.TargetType != "" || m.TargetID != ""
}

// MatchesTarget reports whether the movement references the given target.
func (m Movement) MatchesTarget(targetType, targetID string) bool {
	return m.TargetType == targetType && m.TargetID == targetID
}

// Persisted reports whether the movement has been assigned a persistent id.
func (m Movement) Persisted() bool {
	return m.ID != nil
}
