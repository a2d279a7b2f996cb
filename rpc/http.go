package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"agora/core/events"
	"agora/native/auction"
	"agora/native/escrow"
	"agora/native/ledger"
	"agora/native/multisig"
	"agora/native/payments"
	"agora/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// PauseControl is the administrative surface for pausing settlement
// modules.
type PauseControl interface {
	SetPaused(module string, paused bool) error
	IsPaused(module string) bool
}

// Deps carries the engines and services the server exposes.
type Deps struct {
	Ledger   *ledger.Ledger
	Escrow   *escrow.Engine
	Wallets  *multisig.Engine
	Auctions *auction.Engine
	Payments *payments.Engine
	Pauses   PauseControl
	Events   *events.Ring
	Log      *slog.Logger
}

// Server exposes the settlement engines over JSON-RPC 2.0. State
// transitions are serialized by opMu so each operation runs to
// completion before another observes its effects.
type Server struct {
	deps Deps
	log  *slog.Logger

	opMu sync.Mutex

	authToken string

	limitMu   sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	rateBurst int
}

// NewServer creates a server over the provided dependencies. Mutating
// calls are rejected until an auth token is configured.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		deps:      deps,
		log:       log,
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Every(time.Minute / 120),
		rateBurst: 120,
	}
}

// SetAuthToken configures the bearer token required for mutating calls.
func (s *Server) SetAuthToken(token string) { s.authToken = strings.TrimSpace(token) }

// SetRateLimit bounds mutating requests per source address per minute.
func (s *Server) SetRateLimit(perMinute int) {
	if perMinute <= 0 {
		return
	}
	s.rateLimit = rate.Every(time.Minute / time.Duration(perMinute))
	s.rateBurst = perMinute
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start serves the JSON-RPC endpoint on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

type route struct {
	handler  handlerFunc
	mutating bool
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"ledger_deposit":             {s.handleLedgerDeposit, true},
		"ledger_withdraw":            {s.handleLedgerWithdraw, true},
		"ledger_getBalance":          {s.handleLedgerGetBalance, false},
		"ledger_transferWithFee":     {s.handleLedgerTransferWithFee, true},
		"escrow_create":              {s.handleEscrowCreate, true},
		"escrow_get":                 {s.handleEscrowGet, false},
		"escrow_release":             {s.handleEscrowRelease, true},
		"escrow_refund":              {s.handleEscrowRefund, true},
		"escrow_dispute":             {s.handleEscrowDispute, true},
		"escrow_resolve":             {s.handleEscrowResolve, true},
		"escrow_claimExpired":        {s.handleEscrowClaimExpired, true},
		"wallet_create":              {s.handleWalletCreate, true},
		"wallet_get":                 {s.handleWalletGet, false},
		"wallet_getTransaction":      {s.handleWalletGetTransaction, false},
		"wallet_deposit":             {s.handleWalletDeposit, true},
		"wallet_propose":             {s.handleWalletPropose, true},
		"wallet_confirm":             {s.handleWalletConfirm, true},
		"wallet_execute":             {s.handleWalletExecute, true},
		"wallet_cancel":              {s.handleWalletCancel, true},
		"wallet_addOwner":            {s.handleWalletAddOwner, true},
		"wallet_removeOwner":         {s.handleWalletRemoveOwner, true},
		"auction_create":             {s.handleAuctionCreate, true},
		"auction_get":                {s.handleAuctionGet, false},
		"auction_placeBid":           {s.handleAuctionPlaceBid, true},
		"auction_end":                {s.handleAuctionEnd, true},
		"auction_cancel":             {s.handleAuctionCancel, true},
		"auction_createDutch":        {s.handleAuctionCreateDutch, true},
		"auction_getDutch":           {s.handleAuctionGetDutch, false},
		"auction_purchaseDutch":      {s.handleAuctionPurchaseDutch, true},
		"auction_endDutch":           {s.handleAuctionEndDutch, true},
		"payments_createDirect":      {s.handlePaymentsCreateDirect, true},
		"payments_createScheduled":   {s.handlePaymentsCreateScheduled, true},
		"payments_execute":           {s.handlePaymentsExecute, true},
		"payments_cancel":            {s.handlePaymentsCancel, true},
		"payments_createConditional": {s.handlePaymentsCreateConditional, true},
		"payments_fulfill":           {s.handlePaymentsFulfill, true},
		"payments_expire":            {s.handlePaymentsExpire, true},
		"payments_createRecurring":   {s.handlePaymentsCreateRecurring, true},
		"payments_createSplit":       {s.handlePaymentsCreateSplit, true},
		"payments_createBatch":       {s.handlePaymentsCreateBatch, true},
		"payments_get":               {s.handlePaymentsGet, false},
		"events_latest":              {s.handleEventsLatest, false},
		"admin_setPaused":            {s.handleAdminSetPaused, true},
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	rt, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	module, _, _ := strings.Cut(req.Method, "_")
	started := time.Now()

	if rt.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.SettlementMetrics().ObserveError(module, req.Method, fmt.Sprint(authErr.Code))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(requestSource(r)) {
			observability.SettlementMetrics().ObserveThrottle(module)
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		s.opMu.Lock()
		defer s.opMu.Unlock()
	}

	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	rt.handler(rw, r, req)

	outcome := "ok"
	if rw.status >= http.StatusBadRequest {
		outcome = "error"
	}
	observability.SettlementMetrics().Observe(module, req.Method, outcome, time.Since(started))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func requestSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.limitMu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
		s.limiters[source] = limiter
	}
	s.limitMu.Unlock()
	return limiter.Allow()
}

func parseParams(req *RPCRequest, out any) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q", value)
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d bytes", value, len(addr))
	}
	copy(addr[:], decoded)
	return addr, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAddresses(values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for _, value := range values {
		addr, err := parseAddress(value)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseID(value string) ([32]byte, error) {
	var id [32]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return id, fmt.Errorf("invalid id %q", value)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("invalid id %q: want %d bytes", value, len(id))
	}
	copy(id[:], decoded)
	return id, nil
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(cleaned, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseOptionalBigInt(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parsePositiveBigInt(value)
}
