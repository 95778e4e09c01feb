package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/room"
	"github.com/susu3304/warikan/internal/settle"
)

type transactionItem struct {
	From   uuid.UUID `json:"from_member_id"`
	To     uuid.UUID `json:"to_member_id"`
	Amount int64     `json:"amount"`
	Label  string    `json:"label"`
	Kind   string    `json:"kind"`
}

func (i transactionItem) draft() ledger.Transaction {
	return ledger.Transaction{
		From:   i.From,
		To:     i.To,
		Amount: i.Amount,
		Label:  i.Label,
		Kind:   ledger.Kind(i.Kind),
	}
}

func (a *API) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidTransaction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, settle.ErrUnknownStrategy):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, room.ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.Is(err, room.ErrNotMember):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ledger.ErrMemberHasBalance):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		a.log.Error("internal error", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// roomFromRequest resolves the room in the path. When requireMember is set
// the caller must belong to the room.
func (a *API) roomFromRequest(w http.ResponseWriter, r *http.Request, requireMember bool) (*room.Room, *Claims, bool) {
	claims := r.Context().Value("claims").(*Claims)
	roomID, err := uuid.Parse(mux.Vars(r)["room_id"])
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return nil, nil, false
	}
	rm, err := a.rooms.Room(r.Context(), roomID)
	if err != nil {
		a.writeError(w, err)
		return nil, nil, false
	}
	if requireMember && !rm.IsMember(claims.memberUUID()) {
		a.writeError(w, room.ErrNotMember)
		return nil, nil, false
	}
	return rm, claims, true
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value("claims").(*Claims)

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	creator := ledger.Member{ID: claims.memberUUID(), DisplayName: claims.DisplayName}
	rm, err := a.rooms.CreateRoom(r.Context(), req.Name, creator)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.writeJSON(w, rm.Snapshot())
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := a.roomFromRequest(w, r, false)
	if !ok {
		return
	}
	a.writeJSON(w, rm.Snapshot())
}

func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	rm, claims, ok := a.roomFromRequest(w, r, false)
	if !ok {
		return
	}

	// Display name may be overridden by the body; defaults to the token's.
	var req struct {
		DisplayName string `json:"display_name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	name := req.DisplayName
	if name == "" {
		name = claims.DisplayName
	}

	if err := rm.Join(r.Context(), ledger.Member{ID: claims.memberUUID(), DisplayName: name}); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, rm.Snapshot())
}

func (a *API) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	rm, claims, ok := a.roomFromRequest(w, r, true)
	if !ok {
		return
	}
	if err := rm.Leave(r.Context(), claims.memberUUID()); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, map[string]string{"message": "left room"})
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := a.roomFromRequest(w, r, true)
	if !ok {
		return
	}

	var item transactionItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	txs, plan, err := rm.Append(r.Context(), []ledger.Transaction{item.draft()})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, map[string]interface{}{
		"transaction":     txs[0],
		"settlement_plan": plan,
	})
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := a.roomFromRequest(w, r, true)
	if !ok {
		return
	}

	var req struct {
		Items []transactionItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	drafts := make([]ledger.Transaction, 0, len(req.Items))
	for _, item := range req.Items {
		drafts = append(drafts, item.draft())
	}

	txs, plan, err := rm.Append(r.Context(), drafts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, map[string]interface{}{
		"transactions":    txs,
		"settlement_plan": plan,
	})
}

// handleCreateExpense splits one amount across participants on the server
// and records the result as a transaction group. EXPENSE: participants owe
// the payer their share. INCOME: the payer owes each participant a share of
// money received on the group's behalf.
func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	rm, claims, ok := a.roomFromRequest(w, r, true)
	if !ok {
		return
	}

	var req struct {
		PayerMemberID        uuid.UUID   `json:"payer_member_id"`
		TotalAmount          int64       `json:"total_amount"`
		ParticipantMemberIDs []uuid.UUID `json:"participant_member_ids"`
		Label                string      `json:"label"`
		Kind                 string      `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payer := req.PayerMemberID
	if payer == uuid.Nil {
		payer = claims.memberUUID()
	}
	kind := ledger.KindExpense
	if req.Kind != "" {
		parsed, err := ledger.ParseKind(req.Kind)
		if err != nil {
			a.writeError(w, err)
			return
		}
		kind = parsed
	}
	if kind == ledger.KindTransfer {
		http.Error(w, "kind must be EXPENSE or INCOME", http.StatusBadRequest)
		return
	}

	shares, err := ledger.SplitEvenly(req.TotalAmount, req.ParticipantMemberIDs)
	if err != nil {
		a.writeError(w, err)
		return
	}

	var drafts []ledger.Transaction
	for _, share := range shares {
		if share.MemberID == payer || share.Amount == 0 {
			continue
		}
		d := ledger.Transaction{
			From:   share.MemberID,
			To:     payer,
			Amount: share.Amount,
			Label:  req.Label,
			Kind:   kind,
		}
		if kind == ledger.KindIncome {
			d.From, d.To = d.To, d.From
		}
		drafts = append(drafts, d)
	}

	if len(drafts) == 0 {
		// The payer was the only participant with a nonzero share.
		a.writeJSON(w, map[string]interface{}{
			"transactions":    []ledger.Transaction{},
			"settlement_plan": rm.Snapshot().Plan,
		})
		return
	}

	txs, plan, err := rm.Append(r.Context(), drafts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, map[string]interface{}{
		"transactions":    txs,
		"settlement_plan": plan,
	})
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := a.roomFromRequest(w, r, true)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["transaction_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	plan, err := rm.DeleteTransaction(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, map[string]interface{}{"settlement_plan": plan})
}

func (a *API) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := a.roomFromRequest(w, r, true)
	if !ok {
		return
	}
	groupID, err := uuid.Parse(mux.Vars(r)["group_id"])
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}

	plan, err := rm.DeleteGroup(r.Context(), groupID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, map[string]interface{}{"settlement_plan": plan})
}

func (a *API) handleSimplify(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := a.roomFromRequest(w, r, true)
	if !ok {
		return
	}
	strategy, err := settle.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	plan, err := rm.Simplify(strategy)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, map[string]interface{}{
		"strategy":        strategy,
		"settlement_plan": plan,
	})
}
