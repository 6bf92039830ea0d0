package domain

import "sort"

// OperationHistory is a projection of operations grouped by kind: the
// repository seeds it on load with the recent window, and the aggregate
// appends this session's operations as they happen. It does not drive
// balance math.
type OperationHistory struct {
	operations map[MovementKind][]*Operation
}

// NewOperationHistory creates an empty history.
func NewOperationHistory() *OperationHistory {
	return &OperationHistory{operations: make(map[MovementKind][]*Operation)}
}

// Register adds operations to the projection, preserving call order within
// each kind.
func (h *OperationHistory) Register(operations ...*Operation) {
	for _, op := range operations {
		h.operations[op.Kind] = append(h.operations[op.Kind], op)
	}
}

// Operations returns the recorded operations of the given kind.
func (h *OperationHistory) Operations(kind MovementKind) []*Operation {
	return h.operations[kind]
}

// Kinds returns the kinds with at least one recorded operation, sorted for
// deterministic iteration.
func (h *OperationHistory) Kinds() []MovementKind {
	kinds := make([]MovementKind, 0, len(h.operations))
	for kind := range h.operations {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// All returns every recorded operation grouped by kind order.
func (h *OperationHistory) All() []*Operation {
	var all []*Operation
	for _, kind := range h.Kinds() {
		all = append(all, h.operations[kind]...)
	}
	return all
}

// Len returns the number of recorded operations.
func (h *OperationHistory) Len() int {
	n := 0
	for _, ops := range h.operations {
		n += len(ops)
	}
	return n
}
