package rpc

import (
	"errors"
	"math/big"
	"net/http"

	"agora/native/ledger"
	"agora/observability"
)

const (
	codeLedgerInvalidParams = -32030
	codeLedgerInsufficient  = -32031
	codeLedgerInternal      = -32032
)

type ledgerMoveParams struct {
	Account string `json:"account"`
	Asset   string `json:"asset,omitempty"`
	Amount  string `json:"amount"`
}

type ledgerBalanceParams struct {
	Account string `json:"account"`
	Asset   string `json:"asset,omitempty"`
}

type ledgerTransferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Asset  string `json:"asset,omitempty"`
	Amount string `json:"amount"`
	FeeBps uint32 `json:"feeBps"`
}

type balanceResult struct {
	Account string   `json:"account"`
	Asset   string   `json:"asset"`
	Balance *big.Int `json:"balance"`
}

type transferResult struct {
	Fee  *big.Int      `json:"fee"`
	Net  *big.Int      `json:"net"`
	From balanceResult `json:"from"`
	To   balanceResult `json:"to"`
}

func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	code := codeLedgerInternal
	message := "internal_error"
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeLedgerInsufficient
		message = "insufficient_funds"
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAsset):
		status = http.StatusBadRequest
		code = codeLedgerInvalidParams
		message = "invalid_params"
	}
	observability.SettlementMetrics().ObserveError("ledger", "", message)
	writeError(w, status, id, code, message, err.Error())
}

func (s *Server) balanceResult(account [20]byte, asset string) (balanceResult, error) {
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return balanceResult{}, err
	}
	balance, err := s.deps.Ledger.Balance(account, normalized)
	if err != nil {
		return balanceResult{}, err
	}
	return balanceResult{Account: formatAddress(account), Asset: normalized, Balance: balance}, nil
}

func (s *Server) handleLedgerDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ledgerMoveParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Ledger.Credit(account, params.Asset, amount); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	result, err := s.balanceResult(account, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleLedgerWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ledgerMoveParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Ledger.Debit(account, params.Asset, amount); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	result, err := s.balanceResult(account, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleLedgerGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ledgerBalanceParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	result, err := s.balanceResult(account, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleLedgerTransferWithFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ledgerTransferParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeLedgerInvalidParams, "invalid_params", err.Error())
		return
	}
	applied, err := s.deps.Ledger.TransferWithFee(from, to, params.Asset, amount, params.FeeBps)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	fromBal, err := s.balanceResult(from, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	toBal, err := s.balanceResult(to, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("ledger", fromBal.Asset, amount)
	writeResult(w, req.ID, transferResult{Fee: applied.Fee, Net: applied.Net, From: fromBal, To: toBal})
}
