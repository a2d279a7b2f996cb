package rpc

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"agora/native/ledger"
	"agora/native/multisig"
	"agora/observability"
)

const (
	codeWalletInvalidParams = -32050
	codeWalletNotFound      = -32051
	codeWalletForbidden     = -32052
	codeWalletConflict      = -32053
	codeWalletThreshold     = -32054
	codeWalletCallFailed    = -32055
	codeWalletInternal      = -32056
)

type walletCreateParams struct {
	Owners    []string `json:"owners"`
	Threshold uint32   `json:"threshold"`
	Nonce     uint64   `json:"nonce"`
}

type walletIDParams struct {
	ID string `json:"id"`
}

type walletDepositParams struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type walletProposeParams struct {
	ID          string `json:"id"`
	Caller      string `json:"caller"`
	Destination string `json:"destination"`
	Value       string `json:"value"`
	Command     string `json:"command,omitempty"`
	Data        string `json:"data,omitempty"`
}

type walletTxParams struct {
	ID     string `json:"id"`
	TxID   uint64 `json:"txId"`
	Caller string `json:"caller"`
}

type walletOwnerParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

type walletJSON struct {
	ID        string   `json:"id"`
	Owners    []string `json:"owners"`
	Threshold uint32   `json:"threshold"`
	Balance   string   `json:"balance"`
	TxCount   uint64   `json:"txCount"`
	CreatedAt int64    `json:"createdAt"`
}

type walletTxJSON struct {
	ID          uint64   `json:"id"`
	WalletID    string   `json:"walletId"`
	Creator     string   `json:"creator"`
	Destination string   `json:"destination"`
	Value       string   `json:"value"`
	Command     string   `json:"command"`
	Confirmed   []string `json:"confirmed"`
	Executed    bool     `json:"executed"`
	Cancelled   bool     `json:"cancelled"`
}

func formatWalletJSON(w *multisig.Wallet) walletJSON {
	owners := make([]string, 0, len(w.Owners))
	for _, owner := range w.Owners {
		owners = append(owners, formatAddress(owner))
	}
	return walletJSON{
		ID:        formatID(w.ID),
		Owners:    owners,
		Threshold: w.Threshold,
		Balance:   w.Balance.String(),
		TxCount:   w.TxCount,
		CreatedAt: w.CreatedAt,
	}
}

func formatWalletTxJSON(tx *multisig.PendingTransaction) walletTxJSON {
	confirmed := make([]string, 0, len(tx.Confirmed))
	for _, owner := range tx.Confirmed {
		confirmed = append(confirmed, formatAddress(owner))
	}
	command := "transfer"
	if tx.Command.Kind == multisig.CommandOpaque {
		command = "opaque"
	}
	return walletTxJSON{
		ID:          tx.ID,
		WalletID:    formatID(tx.WalletID),
		Creator:     formatAddress(tx.Creator),
		Destination: formatAddress(tx.Destination),
		Value:       tx.Value.String(),
		Command:     command,
		Confirmed:   confirmed,
		Executed:    tx.Executed,
		Cancelled:   tx.Cancelled,
	}
}

func writeWalletError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	code := codeWalletInternal
	message := "internal_error"
	switch {
	case errors.Is(err, multisig.ErrNotFound), errors.Is(err, multisig.ErrTxNotFound):
		status = http.StatusNotFound
		code = codeWalletNotFound
		message = "not_found"
	case errors.Is(err, multisig.ErrNotOwner), errors.Is(err, multisig.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeWalletForbidden
		message = "forbidden"
	case errors.Is(err, multisig.ErrThresholdNotMet):
		status = http.StatusConflict
		code = codeWalletThreshold
		message = "threshold_not_met"
	case errors.Is(err, multisig.ErrExternalCallFailed):
		status = http.StatusBadGateway
		code = codeWalletCallFailed
		message = "external_call_failed"
	case errors.Is(err, multisig.ErrAlreadyConfirmed),
		errors.Is(err, multisig.ErrAlreadyExecuted),
		errors.Is(err, multisig.ErrCancelled),
		errors.Is(err, multisig.ErrInsufficientFunds),
		errors.Is(err, multisig.ErrOwnerBelowThreshold),
		errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeWalletConflict
		message = "conflict"
	case errors.Is(err, multisig.ErrNoOwners),
		errors.Is(err, multisig.ErrDuplicateOwner),
		errors.Is(err, multisig.ErrInvalidThreshold),
		errors.Is(err, multisig.ErrInvalidValue),
		errors.Is(err, multisig.ErrInvalidCommand):
		status = http.StatusBadRequest
		code = codeWalletInvalidParams
		message = "invalid_params"
	}
	observability.SettlementMetrics().ObserveError("wallet", "", message)
	writeError(w, status, id, code, message, err.Error())
}

func (s *Server) handleWalletCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params walletCreateParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	owners, err := parseAddresses(params.Owners)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	wallet, err := s.deps.Wallets.CreateWallet(owners, params.Threshold, params.Nonce)
	if err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatWalletJSON(wallet))
}

func (s *Server) handleWalletGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params walletIDParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	wallet, err := s.deps.Wallets.Wallet(id)
	if err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatWalletJSON(wallet))
}

func (s *Server) handleWalletGetTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params walletTxParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	tx, err := s.deps.Wallets.Transaction(id, params.TxID)
	if err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatWalletTxJSON(tx))
}

func (s *Server) handleWalletDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params walletDepositParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Wallets.Deposit(id, from, amount); err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	wallet, err := s.deps.Wallets.Wallet(id)
	if err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatWalletJSON(wallet))
}

func (s *Server) handleWalletPropose(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params walletProposeParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	destination, err := parseAddress(params.Destination)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parsePositiveBigInt(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	command := multisig.Command{Kind: multisig.CommandTransfer}
	switch strings.ToLower(strings.TrimSpace(params.Command)) {
	case "", "transfer":
	case "opaque":
		data, decodeErr := base64.StdEncoding.DecodeString(params.Data)
		if decodeErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", decodeErr.Error())
			return
		}
		command = multisig.Command{Kind: multisig.CommandOpaque, Data: data}
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", "command must be transfer or opaque")
		return
	}
	tx, err := s.deps.Wallets.Propose(id, caller, destination, value, command)
	if err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatWalletTxJSON(tx))
}

type walletTxTransition func(walletID [32]byte, txID uint64, caller [20]byte) error

func (s *Server) handleWalletTxTransition(w http.ResponseWriter, req *RPCRequest, transition walletTxTransition) {
	var params walletTxParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := transition(id, params.TxID, caller); err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	tx, err := s.deps.Wallets.Transaction(id, params.TxID)
	if err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatWalletTxJSON(tx))
}

func (s *Server) handleWalletConfirm(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleWalletTxTransition(w, req, s.deps.Wallets.Confirm)
}

func (s *Server) handleWalletExecute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleWalletTxTransition(w, req, s.deps.Wallets.Execute)
}

func (s *Server) handleWalletCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleWalletTxTransition(w, req, s.deps.Wallets.Cancel)
}

type walletOwnerTransition func(walletID [32]byte, caller, owner [20]byte) error

func (s *Server) handleWalletOwnerTransition(w http.ResponseWriter, req *RPCRequest, transition walletOwnerTransition) {
	var params walletOwnerParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeWalletInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := transition(id, caller, owner); err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	wallet, err := s.deps.Wallets.Wallet(id)
	if err != nil {
		writeWalletError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatWalletJSON(wallet))
}

func (s *Server) handleWalletAddOwner(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleWalletOwnerTransition(w, req, s.deps.Wallets.AddOwner)
}

func (s *Server) handleWalletRemoveOwner(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleWalletOwnerTransition(w, req, s.deps.Wallets.RemoveOwner)
}
