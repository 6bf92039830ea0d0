package domain

import (
	"time"

	"github.com/google/uuid"
)

// SystemOperationOwnerID identifies operations performed by the platform
// itself (expiration and renewal sweeps) rather than by a user.
var SystemOperationOwnerID = uuid.MustParse("9bdafc83-2188-4c18-a638-41255372553b")

// OperationEntry ties one movement to the credit it was applied to.
type OperationEntry struct {
	Credit   *CreditTransaction
	Movement *Movement
}

// Operation is one logical call to the account aggregate (one add, one
// consume, ...). A single operation fans out to one or more movements,
// possibly across several credits.
type Operation struct {
	ID          uuid.UUID
	Kind        MovementKind
	OwnerID     uuid.UUID
	Description string
	TargetType  string
	TargetID    string
	CreatedAt   time.Time

	entries []OperationEntry
}

// NewOperation starts a new logical operation of the given kind.
func NewOperation(kind MovementKind, ownerID uuid.UUID, description string) *Operation {
	if description == "" {
		description = kind.DefaultDescription()
	}
	return &Operation{
		ID:          uuid.New(),
		Kind:        kind,
		OwnerID:     ownerID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// RestoreOperation rebuilds a persisted operation for history views.
func RestoreOperation(id uuid.UUID, kind MovementKind, ownerID uuid.UUID, description, targetType, targetID string, createdAt time.Time) *Operation {
	return &Operation{
		ID:          id,
		Kind:        kind,
		OwnerID:     ownerID,
		Description: description,
		TargetType:  targetType,
		TargetID:    targetID,
		CreatedAt:   createdAt,
	}
}

// SetTarget tags the operation with the external object it refers to.
func (o *Operation) SetTarget(targetType, targetID string) {
	o.TargetType = targetType
	o.TargetID = targetID
}

// Register records that the given movement was applied to the given credit
// as part of this operation.
func (o *Operation) Register(credit *CreditTransaction, movement *Movement) {
	o.entries = append(o.entries, OperationEntry{Credit: credit, Movement: movement})
}

// Entries returns the movements produced by this operation in call order.
func (o *Operation) Entries() []OperationEntry {
	return o.entries
}

// Total returns the signed sum of all movements in this operation.
func (o *Operation) Total() int {
	total := 0
	for _, e := range o.entries {
		total += e.Movement.Delta
	}
	return total
}

// Credits returns the distinct credits touched by this operation,
// in first-touched order.
func (o *Operation) Credits() []*CreditTransaction {
	var credits []*CreditTransaction
	seen := make(map[*CreditTransaction]bool)
	for _, e := range o.entries {
		if seen[e.Credit] {
			continue
		}
		seen[e.Credit] = true
		credits = append(credits, e.Credit)
	}
	return credits
}
