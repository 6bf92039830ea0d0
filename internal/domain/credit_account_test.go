package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testOwnerID = uuid.MustParse("7f9c24e8-3b1a-4ef0-8f6d-2a35c9e3b111")

func newTestAccount(referenceDate time.Time) *CreditAccount {
	return NewCreditAccount(uuid.New(), referenceDate)
}

func TestAccountStartsWithZeroBalance(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	if got := account.Balance(); got != 0 {
		t.Errorf("Balance() = %d, want 0", got)
	}
}

func TestAccountAddThenConsume(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))

	if err := account.Add(10, "", "SUBSCRIPTION", testOwnerID, nil); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if got := account.Balance(); got != 10 {
		t.Fatalf("Balance() = %d, want 10", got)
	}

	if err := account.Consume(ConsumeInput{Value: 3, OwnerID: testOwnerID}); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if got := account.Balance(); got != 7 {
		t.Errorf("Balance() = %d, want 7", got)
	}

	credits := account.Credits()
	if len(credits) != 1 {
		t.Fatalf("expected 1 credit, got %d", len(credits))
	}
	movements := credits[0].Movements()
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	if movements[0].Kind != MovementAdd || movements[0].Delta != 10 {
		t.Errorf("first movement = %s %d, want ADD +10", movements[0].Kind, movements[0].Delta)
	}
	if movements[1].Kind != MovementConsume || movements[1].Delta != -3 {
		t.Errorf("second movement = %s %d, want CONSUME -3", movements[1].Kind, movements[1].Delta)
	}
}

func TestAccountAddRejectsNonPositiveValues(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	for _, value := range []int{0, -5} {
		if err := account.Add(value, "", "SUBSCRIPTION", testOwnerID, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Add(%d) error = %v, want ErrInvalidInput", value, err)
		}
	}
}

func TestAccountEveryAddCreatesABatch(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)
	if got := len(account.Credits()); got != 2 {
		t.Errorf("expected 2 credits, got %d", got)
	}
}

func TestAccountConsumeInsufficientBalance(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))

	if err := account.Consume(ConsumeInput{Value: 1, OwnerID: testOwnerID}); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Consume on empty account error = %v, want ErrInsufficientBalance", err)
	}

	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)
	if err := account.Consume(ConsumeInput{Value: 6, OwnerID: testOwnerID}); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Consume above balance error = %v, want ErrInsufficientBalance", err)
	}
	if err := account.Consume(ConsumeInput{Value: 0, OwnerID: testOwnerID}); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Consume of zero error = %v, want ErrInsufficientBalance", err)
	}

	// Failed consume leaves the aggregate unchanged
	if got := account.Balance(); got != 5 {
		t.Errorf("Balance() = %d, want 5", got)
	}
	if got := len(account.PendingOperations(MovementConsume)); got != 0 {
		t.Errorf("expected no pending consume operations, got %d", got)
	}
}

func TestAccountConsumeSpansBatches(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)

	if err := account.Consume(ConsumeInput{Value: 6, OwnerID: testOwnerID}); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if got := account.Balance(); got != 4 {
		t.Fatalf("Balance() = %d, want 4", got)
	}

	// The walk starts at the most recently added batch
	credits := account.Credits()
	if got := credits[1].RemainingValue(); got != 0 {
		t.Errorf("newest credit remaining = %d, want 0", got)
	}
	if got := credits[0].RemainingValue(); got != 4 {
		t.Errorf("oldest credit remaining = %d, want 4", got)
	}
	if got := credits[1].ConsumedValue(); got != -5 {
		t.Errorf("newest credit consumed = %d, want -5", got)
	}
	if got := credits[0].ConsumedValue(); got != -1 {
		t.Errorf("oldest credit consumed = %d, want -1", got)
	}
}

func TestAccountConsumeProducesOneOperation(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)

	if err := account.Consume(ConsumeInput{Value: 6, OwnerID: testOwnerID, TargetType: "booking", TargetID: "B1"}); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}

	ops := account.PendingOperations(MovementConsume)
	if len(ops) != 1 {
		t.Fatalf("expected 1 consume operation, got %d", len(ops))
	}
	op := ops[0]
	if got := len(op.Entries()); got != 2 {
		t.Errorf("expected operation to fan out to 2 movements, got %d", got)
	}
	if got := op.Total(); got != -6 {
		t.Errorf("operation total = %d, want -6", got)
	}
	if op.TargetType != "booking" || op.TargetID != "B1" {
		t.Errorf("operation target = (%q, %q), want (booking, B1)", op.TargetType, op.TargetID)
	}
	for _, entry := range op.Entries() {
		if entry.Movement.OperationID == nil || *entry.Movement.OperationID != op.ID {
			t.Error("expected every movement to reference the operation")
		}
	}
}

func TestAccountBalanceExcludesExpiredCredits(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, nil)
	if got := account.Balance(); got != 10 {
		t.Fatalf("Balance() = %d, want 10", got)
	}

	account.SetReferenceDate(date(2022, 11, 1))
	if got := account.Balance(); got != 0 {
		t.Errorf("Balance() = %d, want 0", got)
	}
	if got := account.CountExpired(); got != 10 {
		t.Errorf("CountExpired() = %d, want 10", got)
	}
}

func TestAccountConsumeSkipsExpiredCredits(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, nil)

	account.SetReferenceDate(date(2022, 10, 20))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, nil)

	// On Nov 1 the first batch is expired, only the second one is live
	account.SetReferenceDate(date(2022, 11, 1))
	if got := account.Balance(); got != 10 {
		t.Fatalf("Balance() = %d, want 10", got)
	}

	if err := account.Consume(ConsumeInput{Value: 8, OwnerID: testOwnerID}); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	credits := account.Credits()
	if got := credits[0].RemainingValue(); got != 10 {
		t.Errorf("expired credit remaining = %d, want 10 (untouched)", got)
	}
	if got := credits[1].RemainingValue(); got != 2 {
		t.Errorf("live credit remaining = %d, want 2", got)
	}
}

func TestAccountConsumeAtLaterDateFailsCleanly(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil) // expires Nov 1
	account.SetReferenceDate(date(2022, 10, 20))
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil) // expires Nov 20

	// On Nov 5 only the second batch is live, so 8 cannot be settled; the
	// failure must not leave movements behind on any batch
	consumedAt := date(2022, 11, 5)
	err := account.Consume(ConsumeInput{Value: 8, OwnerID: testOwnerID, ConsumedAt: &consumedAt})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Consume beyond dated capacity error = %v, want ErrInsufficientBalance", err)
	}
	for i, credit := range account.Credits() {
		if got := len(credit.Movements()); got != 1 {
			t.Errorf("credit %d has %d movements, want 1", i, got)
		}
	}
	if got := len(account.PendingOperations(MovementConsume)); got != 0 {
		t.Errorf("expected no pending consume operations, got %d", got)
	}

	// A demand the live batch can hold still settles
	if err := account.Consume(ConsumeInput{Value: 4, OwnerID: testOwnerID, ConsumedAt: &consumedAt}); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	credits := account.Credits()
	if got := credits[0].RemainingValue(); got != 5 {
		t.Errorf("batch expired at the consumption date remaining = %d, want 5 (untouched)", got)
	}
	if got := credits[1].RemainingValue(); got != 1 {
		t.Errorf("live batch remaining = %d, want 1", got)
	}
}

func TestAccountExpireIsIdempotent(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, nil)

	account.SetReferenceDate(date(2022, 11, 1))
	account.Expire(testOwnerID)
	account.Expire(testOwnerID)

	credit := account.Credits()[0]
	expireCount := 0
	var expireDelta int
	for _, m := range credit.Movements() {
		if m.Kind == MovementExpire {
			expireCount++
			expireDelta = m.Delta
		}
	}
	if expireCount != 1 {
		t.Fatalf("expected exactly 1 EXPIRE movement, got %d", expireCount)
	}
	if expireDelta != -10 {
		t.Errorf("EXPIRE delta = %d, want -10", expireDelta)
	}
	if got := account.Balance(); got != 0 {
		t.Errorf("Balance() = %d, want 0", got)
	}
	if got := len(account.PendingOperations(MovementExpire)); got != 1 {
		t.Errorf("expected 1 pending expire operation, got %d", got)
	}
}

func TestAccountRefundRestoresConsumedAmount(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)

	if err := account.Consume(ConsumeInput{Value: 6, OwnerID: testOwnerID, TargetType: "booking", TargetID: "B1"}); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if got := account.Balance(); got != 4 {
		t.Fatalf("Balance() = %d, want 4", got)
	}

	if err := account.Refund(testOwnerID, "booking", "B1"); err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if got := account.Balance(); got != 10 {
		t.Errorf("Balance() after refund = %d, want 10", got)
	}

	// Refunding the same target again is a no-op
	if err := account.Refund(testOwnerID, "booking", "B1"); err != nil {
		t.Fatalf("repeated Refund returned error: %v", err)
	}
	if got := account.Balance(); got != 10 {
		t.Errorf("Balance() after repeated refund = %d, want 10", got)
	}
	if got := len(account.PendingOperations(MovementRefund)); got != 1 {
		t.Errorf("expected 1 pending refund operation, got %d", got)
	}
}

func TestAccountRefundRequiresTarget(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	if err := account.Refund(testOwnerID, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Refund without target error = %v, want ErrInvalidInput", err)
	}
}

func TestAccountRenewCarriesForwardOriginalAdd(t *testing.T) {
	serviceID := uuid.New()
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, &serviceID)
	if err := account.Consume(ConsumeInput{Value: 3, OwnerID: testOwnerID}); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}

	account.SetReferenceDate(date(2022, 11, 1))
	account.Renew(testOwnerID, nil)

	credits := account.Credits()
	if len(credits) != 2 {
		t.Fatalf("expected 2 credits after renew, got %d", len(credits))
	}
	successor := credits[1]
	if !successor.CreationDate.Equal(date(2022, 11, 1)) {
		t.Errorf("successor creation date = %v, want 2022-11-01", successor.CreationDate)
	}
	if got := successor.RemainingValue(); got != 10 {
		t.Errorf("successor remaining = %d, want 10", got)
	}
	// The partially consumed predecessor is expired and excluded
	if got := account.Balance(); got != 10 {
		t.Errorf("Balance() = %d, want 10", got)
	}
}

func TestAccountRenewIsGuardedAgainstDoubleRenewal(t *testing.T) {
	serviceID := uuid.New()
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, &serviceID)

	account.SetReferenceDate(date(2022, 11, 1))
	account.Renew(testOwnerID, nil)
	account.Renew(testOwnerID, nil)

	if got := len(account.Credits()); got != 2 {
		t.Errorf("expected 2 credits after double renew, got %d", got)
	}
	if got := account.Balance(); got != 10 {
		t.Errorf("Balance() = %d, want 10", got)
	}
}

func TestAccountRenewGuardSurvivesPersistence(t *testing.T) {
	serviceID := uuid.New()
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, &serviceID)

	account.SetReferenceDate(date(2022, 11, 1))
	account.Renew(testOwnerID, nil)

	// The repository assigns ids on save; the guard must still recognize
	// the persisted successor when the sweep runs again
	for _, credit := range account.Credits() {
		id := uuid.New()
		credit.ID = &id
	}
	account.Renew(testOwnerID, nil)

	if got := len(account.Credits()); got != 2 {
		t.Errorf("expected 2 credits after renew replay, got %d", got)
	}
	if got := account.Balance(); got != 10 {
		t.Errorf("Balance() = %d, want 10", got)
	}
}

func TestAccountRenewCoversCreditsWithoutContract(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "PROMOTION", testOwnerID, nil)

	// The eligibility predicate only gates batches tied to a contract
	account.SetReferenceDate(date(2022, 11, 1))
	account.Renew(testOwnerID, func(uuid.UUID) bool { return false })

	credits := account.Credits()
	if len(credits) != 2 {
		t.Fatalf("expected a successor for the contract-less credit, got %d credits", len(credits))
	}
	if credits[1].ContractedServiceID != nil {
		t.Error("expected the successor to carry no contracted service")
	}
	if got := account.Balance(); got != 10 {
		t.Errorf("Balance() = %d, want 10", got)
	}
}

func TestAccountRenewHonorsEligibility(t *testing.T) {
	activeID := uuid.New()
	cancelledID := uuid.New()
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, &activeID)
	_ = account.Add(20, "", "SUBSCRIPTION", testOwnerID, &cancelledID)

	account.SetReferenceDate(date(2022, 11, 1))
	account.Renew(testOwnerID, func(id uuid.UUID) bool { return id == activeID })

	credits := account.Credits()
	if len(credits) != 3 {
		t.Fatalf("expected 3 credits, got %d", len(credits))
	}
	successor := credits[2]
	if successor.ContractedServiceID == nil || *successor.ContractedServiceID != activeID {
		t.Error("expected only the active contract to renew")
	}
	if got := account.Balance(); got != 10 {
		t.Errorf("Balance() = %d, want 10", got)
	}
}

func TestAccountConservation(t *testing.T) {
	// Balance always equals the signed sum of every movement on live
	// batches plus nothing else: value is only created by ADD/RENEW/REFUND
	// and destroyed by CONSUME/EXPIRE.
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, nil)
	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)
	_ = account.Consume(ConsumeInput{Value: 7, OwnerID: testOwnerID, TargetType: "booking", TargetID: "B1"})
	_ = account.Refund(testOwnerID, "booking", "B1")
	_ = account.Consume(ConsumeInput{Value: 2, OwnerID: testOwnerID})

	totals := make(map[MovementKind]int)
	for _, credit := range account.Credits() {
		for _, m := range credit.Movements() {
			totals[m.Kind] += m.Amount
		}
	}
	want := totals[MovementAdd] + totals[MovementRenew] + totals[MovementRefund] - totals[MovementConsume] - totals[MovementExpire]
	if got := account.Balance(); got != want {
		t.Errorf("Balance() = %d, want %d from movement algebra", got, want)
	}

	// Non-negativity
	for i, credit := range account.Credits() {
		if credit.RemainingValue() < 0 {
			t.Errorf("credit %d has negative remaining value", i)
		}
	}
	if account.Balance() < 0 {
		t.Error("balance is negative")
	}
}

func TestAccountHistoryRecordsSessionOperations(t *testing.T) {
	account := newTestAccount(date(2022, 10, 1))
	_ = account.Add(10, "", "SUBSCRIPTION", testOwnerID, nil)
	_ = account.Consume(ConsumeInput{Value: 3, OwnerID: testOwnerID})

	history := account.History()
	if got := len(history.Operations(MovementAdd)); got != 1 {
		t.Errorf("expected 1 ADD operation in history, got %d", got)
	}
	consumes := history.Operations(MovementConsume)
	if len(consumes) != 1 {
		t.Fatalf("expected 1 CONSUME operation in history, got %d", len(consumes))
	}
	if got := consumes[0].Total(); got != -3 {
		t.Errorf("consume total = %d, want -3", got)
	}
}

func TestAccountPendingCredits(t *testing.T) {
	persisted := RestoreCreditTransaction(uuid.New(), uuid.New(), "SUBSCRIPTION", date(2022, 10, 1), date(2022, 10, 1), nil, []*Movement{
		{Kind: MovementAdd, Amount: 10, Delta: 10},
	})
	account := RestoreCreditAccount(uuid.New(), uuid.New(), date(2022, 10, 5), []*CreditTransaction{persisted}, nil)

	_ = account.Add(5, "", "SUBSCRIPTION", testOwnerID, nil)

	pending := account.PendingCredits()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending credit, got %d", len(pending))
	}
	if pending[0].Persisted() {
		t.Error("pending credit must not have an id yet")
	}
}
