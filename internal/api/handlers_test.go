package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/room"
)

const testSecret = "test-secret"

func member(n byte) ledger.Member {
	var id uuid.UUID
	id[15] = n
	return ledger.Member{ID: id, DisplayName: string('A' + rune(n-1))}
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	cfg := &config.Config{Bind: "127.0.0.1:0", JWTSecret: testSecret}
	store := room.NewMemoryStore()
	mgr := room.NewManager(store, room.NewBroadcaster(8, zap.NewNop()), zap.NewNop())
	return New(cfg, mgr, zap.NewNop())
}

func token(t *testing.T, m ledger.Member) string {
	t.Helper()
	tok, err := GenerateToken([]byte(testSecret), m.ID, m.DisplayName, time.Hour)
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, a *API, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func createRoom(t *testing.T, a *API, creator ledger.Member) uuid.UUID {
	t.Helper()
	w := doJSON(t, a, "POST", "/api/rooms", token(t, creator), map[string]string{"name": "trip"})
	require.Equal(t, http.StatusOK, w.Code)
	var snap room.Snapshot
	decode(t, w, &snap)
	return snap.Room.ID
}

func joinRoom(t *testing.T, a *API, roomID uuid.UUID, m ledger.Member) {
	t.Helper()
	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/members", roomID), token(t, m), nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMissingOrBadToken(t *testing.T) {
	a := newTestAPI(t)

	w := doJSON(t, a, "POST", "/api/rooms", "", map[string]string{"name": "trip"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, a, "POST", "/api/rooms", "not-a-jwt", map[string]string{"name": "trip"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateRoomAndPostTransaction(t *testing.T) {
	a := newTestAPI(t)
	alice, bob := member(1), member(2)

	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)

	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/transactions", roomID), token(t, alice),
		map[string]interface{}{
			"from_member_id": bob.ID,
			"to_member_id":   alice.ID,
			"amount":         300,
			"label":          "dinner",
			"kind":           "EXPENSE",
		})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transaction ledger.Transaction `json:"transaction"`
		Plan        []json.RawMessage  `json:"settlement_plan"`
	}
	decode(t, w, &resp)
	assert.Equal(t, int64(1), resp.Transaction.ID)
	assert.Equal(t, int64(300), resp.Transaction.Amount)
	assert.Len(t, resp.Plan, 1)

	// Snapshot reflects the mutation.
	w = doJSON(t, a, "GET", fmt.Sprintf("/api/rooms/%s", roomID), token(t, alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap room.Snapshot
	decode(t, w, &snap)
	assert.Len(t, snap.Transactions, 1)
	assert.Len(t, snap.Members, 2)
}

func TestNonMemberIsForbidden(t *testing.T) {
	a := newTestAPI(t)
	alice, bob, mallory := member(1), member(2), member(9)

	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)

	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/transactions", roomID), token(t, mallory),
		map[string]interface{}{
			"from_member_id": bob.ID,
			"to_member_id":   alice.ID,
			"amount":         300,
			"kind":           "EXPENSE",
		})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUnknownRoomIs404(t *testing.T) {
	a := newTestAPI(t)
	w := doJSON(t, a, "GET", fmt.Sprintf("/api/rooms/%s", uuid.New()), token(t, member(1)), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidTransactionRejected(t *testing.T) {
	a := newTestAPI(t)
	alice, bob := member(1), member(2)
	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)

	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/transactions", roomID), token(t, alice),
		map[string]interface{}{
			"from_member_id": alice.ID,
			"to_member_id":   alice.ID,
			"amount":         10,
			"kind":           "TRANSFER",
		})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroupIsAtomicOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	alice, bob, carol := member(1), member(2), member(3)
	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)
	joinRoom(t, a, roomID, carol)

	items := []map[string]interface{}{
		{"from_member_id": bob.ID, "to_member_id": alice.ID, "amount": 100, "kind": "EXPENSE"},
		{"from_member_id": carol.ID, "to_member_id": alice.ID, "amount": 100, "kind": "EXPENSE"},
		{"from_member_id": carol.ID, "to_member_id": bob.ID, "amount": 0, "kind": "EXPENSE"}, // invalid
	}
	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/transactions/group", roomID), token(t, alice),
		map[string]interface{}{"items": items})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, a, "GET", fmt.Sprintf("/api/rooms/%s", roomID), token(t, alice), nil)
	var snap room.Snapshot
	decode(t, w, &snap)
	assert.Empty(t, snap.Transactions, "no transaction of a failed group may persist")
}

func TestExpenseSplitEndpoint(t *testing.T) {
	a := newTestAPI(t)
	alice, bob, carol := member(1), member(2), member(3)
	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)
	joinRoom(t, a, roomID, carol)

	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/expenses", roomID), token(t, alice),
		map[string]interface{}{
			"total_amount":           1000,
			"participant_member_ids": []uuid.UUID{alice.ID, bob.ID, carol.ID},
			"label":                  "hotel",
		})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Transactions, 2, "payer's own share creates no transaction")

	// 1000 over three: 334 to the lowest id (alice, the payer), then 333, 333.
	var sum int64
	for _, tx := range resp.Transactions {
		assert.Equal(t, alice.ID, tx.To)
		assert.Equal(t, ledger.KindExpense, tx.Kind)
		sum += tx.Amount
	}
	assert.Equal(t, int64(666), sum)

	// All shares of one action form one deletable group.
	groupID := resp.Transactions[0].GroupID
	w = doJSON(t, a, "DELETE", fmt.Sprintf("/api/rooms/%s/groups/%s", roomID, groupID), token(t, bob), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, a, "GET", fmt.Sprintf("/api/rooms/%s", roomID), token(t, alice), nil)
	var snap room.Snapshot
	decode(t, w, &snap)
	assert.Empty(t, snap.Transactions)
}

func TestDeleteTransactionTwiceSucceeds(t *testing.T) {
	a := newTestAPI(t)
	alice, bob := member(1), member(2)
	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)

	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/transactions", roomID), token(t, alice),
		map[string]interface{}{
			"from_member_id": bob.ID, "to_member_id": alice.ID, "amount": 100, "kind": "EXPENSE",
		})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Transaction ledger.Transaction `json:"transaction"`
	}
	decode(t, w, &resp)

	path := fmt.Sprintf("/api/rooms/%s/transactions/%d", roomID, resp.Transaction.ID)
	w = doJSON(t, a, "DELETE", path, token(t, alice), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, a, "DELETE", path, token(t, alice), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSimplifyStrategies(t *testing.T) {
	a := newTestAPI(t)
	alice, bob, carol := member(1), member(2), member(3)
	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)
	joinRoom(t, a, roomID, carol)

	for _, item := range []map[string]interface{}{
		{"from_member_id": bob.ID, "to_member_id": alice.ID, "amount": 300, "kind": "EXPENSE"},
		{"from_member_id": carol.ID, "to_member_id": alice.ID, "amount": 300, "kind": "EXPENSE"},
		{"from_member_id": carol.ID, "to_member_id": bob.ID, "amount": 100, "kind": "EXPENSE"},
	} {
		w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/transactions", roomID), token(t, alice), item)
		require.Equal(t, http.StatusOK, w.Code)
	}

	var resp struct {
		Strategy string        `json:"strategy"`
		Plan     []settleEdgeT `json:"settlement_plan"`
	}

	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/simplify?strategy=GREEDY", roomID), token(t, alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	require.Len(t, resp.Plan, 2)
	assert.Equal(t, settleEdgeT{From: carol.ID, To: alice.ID, Amount: 400}, resp.Plan[0])
	assert.Equal(t, settleEdgeT{From: bob.ID, To: alice.ID, Amount: 200}, resp.Plan[1])

	w = doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/simplify?strategy=PRESERVE", roomID), token(t, alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Len(t, resp.Plan, 3)

	w = doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/simplify?strategy=RESET", roomID), token(t, alice), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Empty(t, resp.Plan)

	w = doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/simplify?strategy=OPTIMAL", roomID), token(t, alice), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type settleEdgeT struct {
	From   uuid.UUID `json:"from_member_id"`
	To     uuid.UUID `json:"to_member_id"`
	Amount int64     `json:"amount"`
}

func TestLeaveWithOpenBalanceConflicts(t *testing.T) {
	a := newTestAPI(t)
	alice, bob := member(1), member(2)
	roomID := createRoom(t, a, alice)
	joinRoom(t, a, roomID, bob)

	w := doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/transactions", roomID), token(t, alice),
		map[string]interface{}{
			"from_member_id": bob.ID, "to_member_id": alice.ID, "amount": 100, "kind": "EXPENSE",
		})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, a, "POST", fmt.Sprintf("/api/rooms/%s/leave", roomID), token(t, bob), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
