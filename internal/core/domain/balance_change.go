package domain

import "time"

type BalanceChangeKind string

const (
	BalanceChangeReplace BalanceChangeKind = "replace"
	BalanceChangeField   BalanceChangeKind = "field"
	BalanceChangeBatch   BalanceChangeKind = "batch"
)

// BalanceChange is emitted after a balance mutation was applied to a cached record.
type BalanceChange struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"sessionId"`
	RecordID   string            `json:"recordId"`
	Kind       BalanceChangeKind `json:"kind"`
	Field      BalanceField      `json:"field,omitempty"`
	Balance    Balance           `json:"balance"`
	OccurredAt time.Time         `json:"occurredAt"`
}
