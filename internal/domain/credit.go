package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/crediario/credits-backend/internal/util"
)

// CreditTransaction is a batch of credits issued once (by an add or a
// renewal) with a single expiration date. Its movement list is append-only:
// the remaining value is always the signed sum of the movements.
type CreditTransaction struct {
	ID                            *uuid.UUID // assigned on first persistence
	AccountID                     uuid.UUID
	Kind                          string // e.g. "SUBSCRIPTION"
	CreationDate                  time.Time
	ContractedServiceID           *uuid.UUID
	ContractedServiceCreationDate time.Time

	movements []*Movement
}

// NewCreditTransaction creates a fresh, empty credit batch. The contracted
// service creation date anchors the expiration day and defaults to the
// batch's own creation date.
func NewCreditTransaction(creationDate time.Time, accountID uuid.UUID, kind string, contractedServiceID *uuid.UUID) *CreditTransaction {
	creationDate = util.Date(creationDate)
	return &CreditTransaction{
		AccountID:                     accountID,
		Kind:                          kind,
		CreationDate:                  creationDate,
		ContractedServiceID:           contractedServiceID,
		ContractedServiceCreationDate: creationDate,
	}
}

// RestoreCreditTransaction rebuilds a persisted credit batch with its
// movements in creation order.
func RestoreCreditTransaction(id uuid.UUID, accountID uuid.UUID, kind string, creationDate, contractedServiceCreationDate time.Time, contractedServiceID *uuid.UUID, movements []*Movement) *CreditTransaction {
	creditID := id
	if contractedServiceCreationDate.IsZero() {
		contractedServiceCreationDate = creationDate
	}
	return &CreditTransaction{
		ID:                            &creditID,
		AccountID:                     accountID,
		Kind:                          kind,
		CreationDate:                  util.Date(creationDate),
		ContractedServiceID:           contractedServiceID,
		ContractedServiceCreationDate: util.Date(contractedServiceCreationDate),
		movements:                     movements,
	}
}

// register appends the movement, tagging it with the operation when one is
// given. Direct batch manipulation (op == nil) is only used by tests and
// rehydration.
func (c *CreditTransaction) register(m Movement, op *Operation) *Movement {
	if op != nil {
		opID := op.ID
		m.OperationID = &opID
	}
	appended := &m
	c.movements = append(c.movements, appended)
	if op != nil {
		op.Register(c, appended)
	}
	return appended
}

// RegisterMovement appends an already-built movement, used by persistence
// adapters when rehydrating a batch.
func (c *CreditTransaction) RegisterMovement(m *Movement) {
	c.movements = append(c.movements, m)
}

// Add seeds the batch with its initial ADD movement. Credits are only
// topped up at creation; later adds go to a new batch.
func (c *CreditTransaction) Add(value int, description string, op *Operation) {
	c.register(NewMovement(MovementAdd, value, description), op)
}

// ConsumeOptions controls a single consume call on a batch.
type ConsumeOptions struct {
	ReferenceDate time.Time
	Description   string
	TargetType    string
	TargetID      string
	// IgnoreExpired skips the expiration check; used when replaying
	// historical movements onto a rehydrated batch.
	IgnoreExpired bool
}

// Consume takes up to value credits from this batch and returns the
// unconsumed remainder. A single call appends at most one CONSUME movement
// and the batch never goes negative: when the demand exceeds the remaining
// value the batch is drained and the rest is returned to the caller.
func (c *CreditTransaction) Consume(value int, op *Operation, opts ConsumeOptions) (int, error) {
	if value < 0 {
		return 0, ErrInvalidInput
	}
	ref := opts.ReferenceDate
	if ref.IsZero() {
		ref = c.CreationDate
	}
	if c.IsExpired(ref) && !opts.IgnoreExpired {
		return 0, ErrExpiredCredit
	}

	remaining := c.RemainingValue()
	if remaining >= value {
		m := NewMovement(MovementConsume, value, opts.Description).WithTarget(opts.TargetType, opts.TargetID)
		c.register(m, op)
		return 0, nil
	}

	m := NewMovement(MovementConsume, remaining, opts.Description).WithTarget(opts.TargetType, opts.TargetID)
	c.register(m, op)
	return value - remaining, nil
}

// Refund mirrors every consume of the given target that has not been
// refunded yet. Repeated calls for the same target are no-ops.
func (c *CreditTransaction) Refund(targetType, targetID string, op *Operation) {
	for _, consume := range c.ConsumedMovements() {
		if !consume.MatchesTarget(targetType, targetID) {
			continue
		}
		if !c.CanRefund(targetType, targetID) {
			continue
		}
		description := ""
		if op != nil {
			description = op.Description
		}
		m := NewMovement(MovementRefund, consume.Amount, description).WithTarget(targetType, targetID)
		c.register(m, op)
	}
}

// Expire zeroes out the batch when the reference date has passed its
// expiration date. The EXPIRE movement is absorbing: once present the batch
// stays expired and further calls do nothing.
func (c *CreditTransaction) Expire(at time.Time, op *Operation) {
	if c.HasExpireMovement() {
		return
	}
	if !c.IsExpired(at) {
		return
	}
	description := ""
	if op != nil {
		description = op.Description
	}
	c.register(NewMovement(MovementExpire, c.RemainingValue(), description), op)
}

// Renew produces the successor batch. The successor starts on this batch's
// expiration date, keeps the contracted-service anchor and is seeded with a
// RENEW movement carrying the original subscription quantum (the sum of
// ADD and RENEW movements), not the remaining balance.
func (c *CreditTransaction) Renew(op *Operation) *CreditTransaction {
	quantum := 0
	for _, m := range c.movements {
		if m.Kind != MovementAdd && m.Kind != MovementRenew {
			continue
		}
		quantum += m.Delta
	}

	successor := NewCreditTransaction(c.ExpirationDate(), c.AccountID, c.Kind, c.ContractedServiceID)
	successor.ContractedServiceCreationDate = c.ContractedServiceCreationDate

	description := ""
	if op != nil {
		description = op.Description
	}
	successor.register(NewMovement(MovementRenew, quantum, description), op)
	return successor
}

// RemainingValue returns the signed sum of all movements in the batch.
func (c *CreditTransaction) RemainingValue() int {
	total := 0
	for _, m := range c.movements {
		total += m.Delta
	}
	return total
}

// ExpirationDate computes when this batch expires: one calendar month after
// the creation date, landing on the contracted service's original order day,
// clamped to the length of the target month.
func (c *CreditTransaction) ExpirationDate() time.Time {
	anchorDay := c.ContractedServiceCreationDate.Day()
	year, month := util.NextMonth(c.CreationDate.Year(), int(c.CreationDate.Month()))
	return util.CalculateActualDate(year, time.Month(month), anchorDay)
}

// IsExpired reports whether the batch is expired at the reference date.
// An EXPIRE movement keeps the batch expired regardless of date math.
func (c *CreditTransaction) IsExpired(referenceDate time.Time) bool {
	return !referenceDate.Before(c.ExpirationDate()) || c.HasExpireMovement()
}

// HasExpireMovement reports whether the batch carries an EXPIRE movement.
func (c *CreditTransaction) HasExpireMovement() bool {
	for _, m := range c.movements {
		if m.Kind == MovementExpire {
			return true
		}
	}
	return false
}

// ConsumedMovements returns the CONSUME movements settled on this batch.
func (c *CreditTransaction) ConsumedMovements() []*Movement {
	var consumed []*Movement
	for _, m := range c.movements {
		if m.Kind != MovementConsume {
			continue
		}
		consumed = append(consumed, m)
	}
	return consumed
}

// ConsumedValue returns the signed sum of the settled CONSUME movements.
func (c *CreditTransaction) ConsumedValue() int {
	total := 0
	for _, m := range c.ConsumedMovements() {
		total += m.Delta
	}
	return total
}

// CanRefund reports whether the target has not been refunded on this batch
// yet. Untargeted movements can never be refunded.
func (c *CreditTransaction) CanRefund(targetType, targetID string) bool {
	if targetType == "" && targetID == "" {
		return false
	}
	for _, m := range c.movements {
		if m.Kind == MovementRefund && m.MatchesTarget(targetType, targetID) {
			return false
		}
	}
	return true
}

// Movements returns the batch's movements in append order.
func (c *CreditTransaction) Movements() []*Movement {
	out := make([]*Movement, len(c.movements))
	copy(out, c.movements)
	return out
}

// PendingMovements returns the movements not yet assigned persistent ids.
func (c *CreditTransaction) PendingMovements() []*Movement {
	var pending []*Movement
	for _, m := range c.movements {
		if m.Persisted() {
			continue
		}
		pending = append(pending, m)
	}
	return pending
}

// Persisted reports whether the batch has been assigned a persistent id.
func (c *CreditTransaction) Persisted() bool {
	return c.ID != nil
}

// Equal compares two batches by identity. When both sides carry a
// persistent id the ids decide. A fresh batch has no id yet, so whenever
// either side is unpersisted equality falls back to the creation date and
// the contracted service, which lets a renewal sweep recognize an already
// persisted successor and stay idempotent across sessions.
func (c *CreditTransaction) Equal(other *CreditTransaction) bool {
	if other == nil {
		return false
	}
	if c.ID != nil && other.ID != nil {
		return *c.ID == *other.ID && c.CreationDate.Equal(other.CreationDate)
	}
	return c.CreationDate.Equal(other.CreationDate) &&
		sameContractedService(c.ContractedServiceID, other.ContractedServiceID)
}

func sameContractedService(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
