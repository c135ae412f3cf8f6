package statistic

import (
	"errors"
	"strings"
)

// Operation is a statistical operation registered on a phenomenon.
type Operation int

const (
	OperationAverage Operation = iota
	OperationMax
	OperationMin
	OperationSum
)

// Persisted identifiers. Historical stores and dashboard payloads use the
// Spanish names for average and sum, so the mapping is explicit rather than
// derived from the constant names.
const (
	idAverage = "PROMEDIO"
	idMax     = "MAX"
	idMin     = "MIN"
	idSum     = "SUMA"
)

// ErrUnknownOperation is returned when an identifier maps to no operation.
var ErrUnknownOperation = errors.New("statistic: unknown operation")

// Operations lists all operations in persisted order.
func Operations() []Operation {
	return []Operation{OperationAverage, OperationMax, OperationMin, OperationSum}
}

// String returns the persisted identifier for the operation.
func (op Operation) String() string {
	switch op {
	case OperationAverage:
		return idAverage
	case OperationMax:
		return idMax
	case OperationMin:
		return idMin
	case OperationSum:
		return idSum
	}
	return ""
}

// IsValid reports whether the operation is a known member.
func (op Operation) IsValid() bool {
	return op.String() != ""
}

// ParseOperation maps a persisted identifier to its operation,
// case-insensitively.
func ParseOperation(id string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(id)) {
	case idAverage:
		return OperationAverage, nil
	case idMax:
		return OperationMax, nil
	case idMin:
		return OperationMin, nil
	case idSum:
		return OperationSum, nil
	}
	return 0, ErrUnknownOperation
}

// ParseOperationSet maps a list of persisted identifiers to operations,
// skipping duplicates. Unknown identifiers fail the whole set.
func ParseOperationSet(ids []string) ([]Operation, error) {
	seen := make(map[Operation]bool, len(ids))
	ops := make([]Operation, 0, len(ids))
	for _, id := range ids {
		op, err := ParseOperation(id)
		if err != nil {
			return nil, err
		}
		if seen[op] {
			continue
		}
		seen[op] = true
		ops = append(ops, op)
	}
	return ops, nil
}
