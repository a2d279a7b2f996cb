package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"agora/core/events"
	"agora/core/state"
	"agora/native/auction"
	"agora/native/escrow"
	"agora/native/ledger"
	"agora/native/multisig"
	"agora/native/payments"
	"agora/storage"
)

const testToken = "test-token"

var (
	testBuyer    = "0x1111111111111111111111111111111111111111"
	testSeller   = "0x2222222222222222222222222222222222222222"
	testPlatform = [20]byte{0xFE}
	testArbiter  = [20]byte{0xAB}
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	manager := state.NewManager(storage.NewMemDB())
	ring := events.NewRing(64)

	l := ledger.NewLedger()
	l.SetState(manager)
	l.SetFeeCollector(testPlatform)
	l.SetEmitter(ring)

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(manager)
	escrowEngine.SetLedger(l)
	escrowEngine.SetArbiter(testArbiter)
	escrowEngine.SetEmitter(ring)
	escrowEngine.SetPauses(manager)

	walletEngine := multisig.NewEngine()
	walletEngine.SetState(manager)
	walletEngine.SetLedger(l)
	walletEngine.SetEmitter(ring)
	walletEngine.SetPauses(manager)

	auctionEngine := auction.NewEngine()
	auctionEngine.SetState(manager)
	auctionEngine.SetLedger(l)
	auctionEngine.SetEmitter(ring)
	auctionEngine.SetPauses(manager)

	paymentEngine := payments.NewEngine()
	paymentEngine.SetState(manager)
	paymentEngine.SetLedger(l)
	paymentEngine.SetPresenceView(manager)
	paymentEngine.SetEmitter(ring)
	paymentEngine.SetPauses(manager)

	server := NewServer(Deps{
		Ledger:   l,
		Escrow:   escrowEngine,
		Wallets:  walletEngine,
		Auctions: auctionEngine,
		Payments: paymentEngine,
		Pauses:   manager,
		Events:   ring,
	})
	server.SetAuthToken(testToken)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, token, method string, params any) *RPCResponse {
	t.Helper()
	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []any{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return out
}

func resultInto(t *testing.T, resp *RPCResponse, out any) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected RPC error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestMutatingCallRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, "", "ledger_deposit", map[string]any{
		"account": testBuyer,
		"amount":  "1000",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, testToken, "ledger_mint", map[string]any{})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestLedgerDepositAndQuery(t *testing.T) {
	ts := newTestServer(t)

	resp := call(t, ts, testToken, "ledger_deposit", map[string]any{
		"account": testBuyer,
		"amount":  "1000",
	})
	var deposited balanceResult
	resultInto(t, resp, &deposited)
	require.Equal(t, "1000", deposited.Balance.String())
	require.Equal(t, ledger.AssetNative, deposited.Asset)

	// Reads need no token.
	resp = call(t, ts, "", "ledger_getBalance", map[string]any{
		"account": testBuyer,
	})
	var balance balanceResult
	resultInto(t, resp, &balance)
	require.Equal(t, "1000", balance.Balance.String())
}

func TestLedgerInsufficientFundsCode(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, testToken, "ledger_withdraw", map[string]any{
		"account": testBuyer,
		"amount":  "5",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeLedgerInsufficient, resp.Error.Code)
}

func TestEscrowLifecycleOverRPC(t *testing.T) {
	ts := newTestServer(t)

	resp := call(t, ts, testToken, "ledger_deposit", map[string]any{
		"account": testBuyer,
		"amount":  "1000",
	})
	require.Nil(t, resp.Error)

	resp = call(t, ts, testToken, "escrow_create", map[string]any{
		"buyer":  testBuyer,
		"seller": testSeller,
		"amount": "1000",
		"feeBps": 250,
		"expiry": 4_000_000_000,
		"nonce":  1,
	})
	var created escrowJSON
	resultInto(t, resp, &created)
	require.Equal(t, "funded", created.Status)

	resp = call(t, ts, testToken, "escrow_release", map[string]any{
		"id":     created.ID,
		"caller": testBuyer,
	})
	var released escrowJSON
	resultInto(t, resp, &released)
	require.Equal(t, "released", released.Status)

	// 2.5% fee skimmed from 1000.
	resp = call(t, ts, "", "ledger_getBalance", map[string]any{
		"account": testSeller,
	})
	var sellerBal balanceResult
	resultInto(t, resp, &sellerBal)
	require.Equal(t, "975", sellerBal.Balance.String())

	// Double release is a conflict.
	resp = call(t, ts, testToken, "escrow_release", map[string]any{
		"id":     created.ID,
		"caller": testBuyer,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowConflict, resp.Error.Code)

	// Emitted events are visible through the tail.
	resp = call(t, ts, "", "events_latest", map[string]any{"limit": 10})
	var tail []map[string]any
	resultInto(t, resp, &tail)
	require.NotEmpty(t, tail)
}

func TestWalletThresholdOverRPC(t *testing.T) {
	ts := newTestServer(t)

	ownerA := "0x3333333333333333333333333333333333333333"
	ownerB := "0x4444444444444444444444444444444444444444"

	resp := call(t, ts, testToken, "ledger_deposit", map[string]any{
		"account": ownerA,
		"amount":  "500",
	})
	require.Nil(t, resp.Error)

	resp = call(t, ts, testToken, "wallet_create", map[string]any{
		"owners":    []string{ownerA, ownerB},
		"threshold": 2,
		"nonce":     1,
	})
	var wallet walletJSON
	resultInto(t, resp, &wallet)

	resp = call(t, ts, testToken, "wallet_deposit", map[string]any{
		"id":     wallet.ID,
		"from":   ownerA,
		"amount": "500",
	})
	var funded walletJSON
	resultInto(t, resp, &funded)
	require.Equal(t, "500", funded.Balance)

	resp = call(t, ts, testToken, "wallet_propose", map[string]any{
		"id":          wallet.ID,
		"caller":      ownerA,
		"destination": testSeller,
		"value":       "200",
	})
	var tx walletTxJSON
	resultInto(t, resp, &tx)
	require.Len(t, tx.Confirmed, 1)

	// One confirmation is below the threshold of two.
	resp = call(t, ts, testToken, "wallet_execute", map[string]any{
		"id":     wallet.ID,
		"txId":   tx.ID,
		"caller": ownerA,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeWalletThreshold, resp.Error.Code)

	resp = call(t, ts, testToken, "wallet_confirm", map[string]any{
		"id":     wallet.ID,
		"txId":   tx.ID,
		"caller": ownerB,
	})
	require.Nil(t, resp.Error)

	resp = call(t, ts, testToken, "wallet_execute", map[string]any{
		"id":     wallet.ID,
		"txId":   tx.ID,
		"caller": ownerA,
	})
	var executed walletTxJSON
	resultInto(t, resp, &executed)
	require.True(t, executed.Executed)
}

func TestPausedModuleRejectsCalls(t *testing.T) {
	ts := newTestServer(t)

	resp := call(t, ts, testToken, "admin_setPaused", map[string]any{
		"module": "escrow",
		"paused": true,
	})
	var paused adminPauseResult
	resultInto(t, resp, &paused)
	require.True(t, paused.Paused)

	resp = call(t, ts, testToken, "escrow_create", map[string]any{
		"buyer":  testBuyer,
		"seller": testSeller,
		"amount": "10",
		"feeBps": 0,
		"expiry": 4_000_000_000,
		"nonce":  9,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowInternal, resp.Error.Code)
}

func TestSplitPaymentOverRPC(t *testing.T) {
	ts := newTestServer(t)

	sender := "0x5555555555555555555555555555555555555555"
	a := "0x6666666666666666666666666666666666666666"
	b := "0x7777777777777777777777777777777777777777"

	resp := call(t, ts, testToken, "ledger_deposit", map[string]any{
		"account": sender,
		"amount":  "100",
	})
	require.Nil(t, resp.Error)

	resp = call(t, ts, testToken, "payments_createSplit", map[string]any{
		"sender":      sender,
		"recipients":  []string{a, b},
		"percentages": []uint32{60, 40},
		"amount":      "100",
		"feeBps":      0,
	})
	var p paymentJSON
	resultInto(t, resp, &p)
	require.Equal(t, "completed", p.Status)

	for account, want := range map[string]string{a: "60", b: "40"} {
		resp = call(t, ts, "", "ledger_getBalance", map[string]any{"account": account})
		var bal balanceResult
		resultInto(t, resp, &bal)
		require.Equal(t, want, bal.Balance.String(), fmt.Sprintf("account %s", account))
	}
}
