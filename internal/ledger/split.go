package ledger

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type Share struct {
	MemberID uuid.UUID
	Amount   int64
}

// SplitEvenly divides total minor units across the participants. Each gets
// total/n; the remainder is assigned one unit at a time to participants in
// ascending member-id order, so the same input always yields the same split.
func SplitEvenly(total int64, participants []uuid.UUID) ([]Share, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidTransaction, total)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidTransaction)
	}
	ids := make([]uuid.UUID, len(participants))
	copy(ids, participants)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidTransaction, ids[i])
		}
	}

	n := int64(len(ids))
	base := total / n
	rem := total % n
	shares := make([]Share, 0, len(ids))
	for i, id := range ids {
		amount := base
		if int64(i) < rem {
			amount++
		}
		shares = append(shares, Share{MemberID: id, Amount: amount})
	}
	return shares, nil
}
