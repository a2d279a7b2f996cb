package rpc

import (
	"errors"
	"net/http"
	"strings"

	"agora/native/escrow"
	"agora/native/ledger"
	"agora/observability"
)

const (
	codeEscrowInvalidParams = -32040
	codeEscrowNotFound      = -32041
	codeEscrowForbidden     = -32042
	codeEscrowConflict      = -32043
	codeEscrowInternal      = -32044
)

type escrowCreateParams struct {
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount"`
	FeeBps uint32 `json:"feeBps"`
	Expiry int64  `json:"expiry"`
	Nonce  uint64 `json:"nonce"`
}

type escrowIDParams struct {
	ID string `json:"id"`
}

type escrowActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type escrowResolveParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Winner string `json:"winner"`
}

type escrowJSON struct {
	ID        string `json:"id"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	FeeBps    uint32 `json:"feeBps"`
	CreatedAt int64  `json:"createdAt"`
	Expiry    int64  `json:"expiry"`
	Status    string `json:"status"`
	Winner    string `json:"winner,omitempty"`
}

func formatEscrowJSON(esc *escrow.Escrow) escrowJSON {
	out := escrowJSON{
		ID:        formatID(esc.ID),
		Buyer:     formatAddress(esc.Buyer),
		Seller:    formatAddress(esc.Seller),
		Asset:     esc.Asset,
		Amount:    esc.Amount.String(),
		FeeBps:    esc.FeeBps,
		CreatedAt: esc.CreatedAt,
		Expiry:    esc.Expiry,
		Status:    esc.Status.String(),
	}
	switch esc.Winner {
	case escrow.WinnerBuyer:
		out.Winner = "buyer"
	case escrow.WinnerSeller:
		out.Winner = "seller"
	}
	return out
}

func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	message := "internal_error"
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
		code = codeEscrowNotFound
		message = "not_found"
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeEscrowForbidden
		message = "forbidden"
	case errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrExpired),
		errors.Is(err, escrow.ErrNotExpired),
		errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeEscrowConflict
		message = "conflict"
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidWinner),
		errors.Is(err, escrow.ErrInvalidParties),
		errors.Is(err, escrow.ErrInvalidExpiry):
		status = http.StatusBadRequest
		code = codeEscrowInvalidParams
		message = "invalid_params"
	}
	observability.SettlementMetrics().ObserveError("escrow", "", message)
	writeError(w, status, id, code, message, err.Error())
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.deps.Escrow.Create(buyer, seller, params.Asset, amount, params.FeeBps, params.Expiry, params.Nonce)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("escrow", esc.Asset, esc.Amount)
	writeResult(w, req.ID, formatEscrowJSON(esc))
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.deps.Escrow.Get(id)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrowJSON(esc))
}

type escrowTransition func(id [32]byte, caller [20]byte) error

func (s *Server) handleEscrowTransition(w http.ResponseWriter, req *RPCRequest, transition escrowTransition) {
	var params escrowActorParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := transition(id, caller); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	esc, err := s.deps.Escrow.Get(id)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrowJSON(esc))
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.deps.Escrow.Release)
}

func (s *Server) handleEscrowRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.deps.Escrow.Refund)
}

func (s *Server) handleEscrowDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.deps.Escrow.Dispute)
}

func (s *Server) handleEscrowClaimExpired(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleEscrowTransition(w, req, s.deps.Escrow.ClaimExpired)
}

func (s *Server) handleEscrowResolve(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowResolveParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	var winner escrow.Winner
	switch strings.ToLower(strings.TrimSpace(params.Winner)) {
	case "buyer":
		winner = escrow.WinnerBuyer
	case "seller":
		winner = escrow.WinnerSeller
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "winner must be buyer or seller")
		return
	}
	if err := s.deps.Escrow.Resolve(id, caller, winner); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	esc, err := s.deps.Escrow.Get(id)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrowJSON(esc))
}
