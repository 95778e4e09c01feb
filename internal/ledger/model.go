package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a transaction by the user action that produced it.
type Kind string

const (
	KindExpense  Kind = "EXPENSE"
	KindIncome   Kind = "INCOME"
	KindTransfer Kind = "TRANSFER"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindExpense, KindIncome, KindTransfer:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, s)
	}
}

type Member struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
}

// Transaction is one debt relationship between two room members:
// From owes To Amount minor units. Immutable once appended.
type Transaction struct {
	ID        int64     `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	GroupID   uuid.UUID `json:"group_id"`
	From      uuid.UUID `json:"from_member_id"`
	To        uuid.UUID `json:"to_member_id"`
	Amount    int64     `json:"amount"`
	Label     string    `json:"label"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}
