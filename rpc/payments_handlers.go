package rpc

import (
	"encoding/base64"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"agora/native/ledger"
	"agora/native/payments"
	"agora/observability"
)

const (
	codePaymentsInvalidParams = -32070
	codePaymentsNotFound      = -32071
	codePaymentsForbidden     = -32072
	codePaymentsConflict      = -32073
	codePaymentsInternal      = -32074
)

type paymentDirectParams struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Asset     string `json:"asset,omitempty"`
	Amount    string `json:"amount"`
	FeeBps    uint32 `json:"feeBps"`
}

type paymentScheduledParams struct {
	paymentDirectParams
	ReleaseTime int64 `json:"releaseTime"`
}

type paymentIDParams struct {
	ID string `json:"id"`
}

type paymentActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type conditionJSON struct {
	Kind          string `json:"kind"`
	UnlockTime    int64  `json:"unlockTime,omitempty"`
	MinSignatures uint32 `json:"minSignatures,omitempty"`
	Target        string `json:"target,omitempty"`
	Spec          string `json:"spec,omitempty"`
}

type paymentConditionalParams struct {
	paymentDirectParams
	Verifier  string        `json:"verifier"`
	Condition conditionJSON `json:"condition"`
	Deadline  int64         `json:"deadline"`
}

type paymentFulfillParams struct {
	ID         string `json:"id"`
	Caller     string `json:"caller"`
	Signatures uint32 `json:"signatures,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

type paymentRecurringParams struct {
	paymentDirectParams
	Interval int64  `json:"interval"`
	Count    uint32 `json:"count"`
}

type paymentSplitParams struct {
	Sender      string   `json:"sender"`
	Recipients  []string `json:"recipients"`
	Percentages []uint32 `json:"percentages"`
	Asset       string   `json:"asset,omitempty"`
	Amount      string   `json:"amount"`
	FeeBps      uint32   `json:"feeBps"`
}

type paymentBatchParams struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Amounts    []string `json:"amounts"`
	Asset      string   `json:"asset,omitempty"`
	Funded     string   `json:"funded"`
	FeeBps     uint32   `json:"feeBps"`
}

type paymentJSON struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Sender      string         `json:"sender"`
	Recipient   string         `json:"recipient,omitempty"`
	Recipients  []string       `json:"recipients,omitempty"`
	Percentages []uint32       `json:"percentages,omitempty"`
	Asset       string         `json:"asset"`
	Amount      string         `json:"amount"`
	Amounts     []string       `json:"amounts,omitempty"`
	FeeBps      uint32         `json:"feeBps"`
	CreatedAt   int64          `json:"createdAt"`
	ReleaseTime int64          `json:"releaseTime,omitempty"`
	Deadline    int64          `json:"deadline,omitempty"`
	Verifier    string         `json:"verifier,omitempty"`
	Condition   *conditionJSON `json:"condition,omitempty"`
	Interval    int64          `json:"interval,omitempty"`
	ParentID    string         `json:"parentId,omitempty"`
}

type recurringResult struct {
	Parent   paymentJSON `json:"parent"`
	Children []string    `json:"children"`
}

func formatConditionJSON(c *payments.Condition) *conditionJSON {
	if c == nil {
		return nil
	}
	out := &conditionJSON{
		UnlockTime:    c.UnlockTime,
		MinSignatures: c.MinSignatures,
	}
	switch c.Kind {
	case payments.ConditionTime:
		out.Kind = "time"
	case payments.ConditionSignatures:
		out.Kind = "signatures"
	case payments.ConditionPresence:
		out.Kind = "presence"
	case payments.ConditionCustom:
		out.Kind = "custom"
	}
	if c.Target != ([20]byte{}) {
		out.Target = formatAddress(c.Target)
	}
	if len(c.Spec) > 0 {
		out.Spec = base64.StdEncoding.EncodeToString(c.Spec)
	}
	return out
}

func parseConditionJSON(in conditionJSON) (*payments.Condition, error) {
	cond := &payments.Condition{
		UnlockTime:    in.UnlockTime,
		MinSignatures: in.MinSignatures,
	}
	switch strings.ToLower(strings.TrimSpace(in.Kind)) {
	case "time":
		cond.Kind = payments.ConditionTime
	case "signatures":
		cond.Kind = payments.ConditionSignatures
	case "presence":
		cond.Kind = payments.ConditionPresence
	case "custom":
		cond.Kind = payments.ConditionCustom
	default:
		return nil, errors.New("condition kind must be time, signatures, presence or custom")
	}
	if in.Target != "" {
		target, err := parseAddress(in.Target)
		if err != nil {
			return nil, err
		}
		cond.Target = target
	}
	if in.Spec != "" {
		spec, err := base64.StdEncoding.DecodeString(in.Spec)
		if err != nil {
			return nil, err
		}
		cond.Spec = spec
	}
	return cond, nil
}

func formatPaymentJSON(p *payments.Payment) paymentJSON {
	out := paymentJSON{
		ID:          p.ID,
		Kind:        p.Kind.String(),
		Status:      p.Status.String(),
		Sender:      formatAddress(p.Sender),
		Asset:       p.Asset,
		Amount:      p.Amount.String(),
		Percentages: p.Percentages,
		FeeBps:      p.FeeBps,
		CreatedAt:   p.CreatedAt,
		ReleaseTime: p.ReleaseTime,
		Deadline:    p.Deadline,
		Condition:   formatConditionJSON(p.Condition),
		Interval:    p.Interval,
		ParentID:    p.ParentID,
	}
	if p.Recipient != ([20]byte{}) {
		out.Recipient = formatAddress(p.Recipient)
	}
	for _, recipient := range p.Recipients {
		out.Recipients = append(out.Recipients, formatAddress(recipient))
	}
	for _, amount := range p.Amounts {
		out.Amounts = append(out.Amounts, amount.String())
	}
	if p.Verifier != ([20]byte{}) {
		out.Verifier = formatAddress(p.Verifier)
	}
	return out
}

func writePaymentsError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	code := codePaymentsInternal
	message := "internal_error"
	switch {
	case errors.Is(err, payments.ErrNotFound):
		status = http.StatusNotFound
		code = codePaymentsNotFound
		message = "not_found"
	case errors.Is(err, payments.ErrUnauthorized):
		status = http.StatusForbidden
		code = codePaymentsForbidden
		message = "forbidden"
	case errors.Is(err, payments.ErrInvalidState),
		errors.Is(err, payments.ErrNotDue),
		errors.Is(err, payments.ErrDeadlinePassed),
		errors.Is(err, payments.ErrDeadlineNotReached),
		errors.Is(err, payments.ErrProofRejected),
		errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codePaymentsConflict
		message = "conflict"
	case errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidSchedule),
		errors.Is(err, payments.ErrInvalidCondition),
		errors.Is(err, payments.ErrInvalidFanOut),
		errors.Is(err, payments.ErrInvalidPercentages),
		errors.Is(err, payments.ErrBatchOverFunded),
		errors.Is(err, payments.ErrInvalidInterval),
		errors.Is(err, payments.ErrInvalidCount),
		errors.Is(err, ledger.ErrInvalidAsset):
		status = http.StatusBadRequest
		code = codePaymentsInvalidParams
		message = "invalid_params"
	}
	observability.SettlementMetrics().ObserveError("payments", "", message)
	writeError(w, status, id, code, message, err.Error())
}

func (s *Server) handlePaymentsCreateDirect(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentDirectParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, recipient, amount, err := parsePaymentParties(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.deps.Payments.Direct(sender, recipient, params.Asset, amount, params.FeeBps)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("payments", p.Asset, p.Amount)
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func parsePaymentParties(params paymentDirectParams) ([20]byte, [20]byte, *big.Int, error) {
	sender, err := parseAddress(params.Sender)
	if err != nil {
		return [20]byte{}, [20]byte{}, nil, err
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		return [20]byte{}, [20]byte{}, nil, err
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		return [20]byte{}, [20]byte{}, nil, err
	}
	return sender, recipient, amount, nil
}

func (s *Server) handlePaymentsCreateScheduled(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentScheduledParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, recipient, amount, err := parsePaymentParties(params.paymentDirectParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.deps.Payments.Scheduled(sender, recipient, params.Asset, amount, params.FeeBps, params.ReleaseTime)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsExecute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentIDParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Payments.Execute(params.ID); err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	p, err := s.deps.Payments.Get(params.ID)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("payments", p.Asset, p.Amount)
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentActorParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Payments.Cancel(params.ID, caller); err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	p, err := s.deps.Payments.Get(params.ID)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsCreateConditional(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentConditionalParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, recipient, amount, err := parsePaymentParties(params.paymentDirectParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	verifier, err := parseAddress(params.Verifier)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	condition, err := parseConditionJSON(params.Condition)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.deps.Payments.Conditional(sender, recipient, params.Asset, amount, params.FeeBps, verifier, condition, params.Deadline)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsFulfill(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentFulfillParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	proof := payments.Proof{Signatures: params.Signatures}
	if params.Payload != "" {
		payload, decodeErr := base64.StdEncoding.DecodeString(params.Payload)
		if decodeErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", decodeErr.Error())
			return
		}
		proof.Payload = payload
	}
	if err := s.deps.Payments.Fulfill(params.ID, caller, proof); err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	p, err := s.deps.Payments.Get(params.ID)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("payments", p.Asset, p.Amount)
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsExpire(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentIDParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Payments.Expire(params.ID); err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	p, err := s.deps.Payments.Get(params.ID)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsCreateRecurring(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentRecurringParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, recipient, amount, err := parsePaymentParties(params.paymentDirectParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	parent, children, err := s.deps.Payments.Recurring(sender, recipient, params.Asset, amount, params.FeeBps, params.Interval, params.Count)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("payments", parent.Asset, parent.Amount)
	writeResult(w, req.ID, recurringResult{Parent: formatPaymentJSON(parent), Children: children})
}

func (s *Server) handlePaymentsCreateSplit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentSplitParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	recipients, err := parseAddresses(params.Recipients)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.deps.Payments.Split(sender, recipients, params.Percentages, params.Asset, amount, params.FeeBps)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("payments", p.Asset, p.Amount)
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsCreateBatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentBatchParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	recipients, err := parseAddresses(params.Recipients)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	amounts := make([]*big.Int, 0, len(params.Amounts))
	for _, raw := range params.Amounts {
		amount, parseErr := parsePositiveBigInt(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", parseErr.Error())
			return
		}
		amounts = append(amounts, amount)
	}
	funded, err := parsePositiveBigInt(params.Funded)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.deps.Payments.Batch(sender, recipients, amounts, params.Asset, funded, params.FeeBps)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("payments", p.Asset, p.Amount)
	writeResult(w, req.ID, formatPaymentJSON(p))
}

func (s *Server) handlePaymentsGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params paymentIDParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codePaymentsInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.deps.Payments.Get(params.ID)
	if err != nil {
		writePaymentsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatPaymentJSON(p))
}
