// Package reconcile decides, per record and per field, whether persisted
// state should change. It is pure: no I/O, no clock, no randomness.
package reconcile

import (
	"time"

	"transaction-sync-backend/internal/models"
)

type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpSkip
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	default:
		return "skip"
	}
}

// Action is the outcome of reconciling one incoming record. For OpUpdate,
// Fields holds only the changed columns plus a refreshed updated_at.
type Action struct {
	Op     Op
	Fields map[string]any
}

// Reconcile compares an incoming canonical record against the previously
// persisted one. Field rules:
//
//   - status: mirrors upstream on any inequality, including regressions.
//   - settledAt, reference: once non-empty, never cleared by an empty
//     incoming value; non-empty values that differ win.
//   - amount: a stored non-zero amount is never regressed; only a zero
//     stored amount can be filled by a positive incoming one.
//   - occurredAt: mirrors upstream on any inequality.
func Reconcile(incoming models.TransactionRecord, existing *models.TransactionRecord) Action {
	if existing == nil {
		return Action{Op: OpInsert}
	}

	fields := map[string]any{}

	if incoming.Status != existing.Status || incoming.StatusCode != existing.StatusCode {
		fields["status"] = incoming.Status
		fields["status_code"] = incoming.StatusCode
	}

	if settledAtChanged(existing.SettledAt, incoming.SettledAt) {
		fields["settled_at"] = incoming.SettledAt
	}

	if incoming.Reference != "" && incoming.Reference != existing.Reference {
		fields["reference"] = incoming.Reference
	}

	if existing.Amount.IsZero() && incoming.Amount.IsPositive() {
		fields["amount"] = incoming.Amount
	}

	if !incoming.OccurredAt.Equal(existing.OccurredAt) || incoming.OccurredAtRaw != existing.OccurredAtRaw {
		fields["occurred_at"] = incoming.OccurredAt
		fields["occurred_at_raw"] = incoming.OccurredAtRaw
	}

	if len(fields) == 0 {
		return Action{Op: OpSkip}
	}
	fields["updated_at"] = incoming.UpdatedAt
	return Action{Op: OpUpdate, Fields: fields}
}

func settledAtChanged(existing, incoming *time.Time) bool {
	if incoming == nil {
		return false
	}
	if existing == nil {
		return true
	}
	return !existing.Equal(*incoming)
}
