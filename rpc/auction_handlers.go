package rpc

import (
	"errors"
	"net/http"

	"agora/native/auction"
	"agora/native/ledger"
	"agora/observability"
)

const (
	codeAuctionInvalidParams = -32060
	codeAuctionNotFound      = -32061
	codeAuctionForbidden     = -32062
	codeAuctionConflict      = -32063
	codeAuctionInternal      = -32064
)

type auctionCreateParams struct {
	ItemRef       string `json:"itemRef"`
	Seller        string `json:"seller"`
	StartingPrice string `json:"startingPrice"`
	Duration      int64  `json:"duration"`
	MinIncrement  string `json:"minIncrement"`
	ReservePrice  string `json:"reservePrice,omitempty"`
	FeeBps        uint32 `json:"feeBps"`
	Nonce         uint64 `json:"nonce"`
}

type auctionIDParams struct {
	ID string `json:"id"`
}

type auctionActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type auctionBidParams struct {
	ID     string `json:"id"`
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

type dutchCreateParams struct {
	ItemRef       string `json:"itemRef"`
	Seller        string `json:"seller"`
	StartingPrice string `json:"startingPrice"`
	ReservePrice  string `json:"reservePrice"`
	Decrement     string `json:"decrement"`
	Interval      int64  `json:"interval"`
	Duration      int64  `json:"duration"`
	FeeBps        uint32 `json:"feeBps"`
	Nonce         uint64 `json:"nonce"`
}

type dutchPurchaseParams struct {
	ID      string `json:"id"`
	Buyer   string `json:"buyer"`
	Payment string `json:"payment"`
}

type auctionJSON struct {
	ID            string `json:"id"`
	ItemRef       string `json:"itemRef"`
	Seller        string `json:"seller"`
	StartingPrice string `json:"startingPrice"`
	CurrentPrice  string `json:"currentPrice"`
	HighestBidder string `json:"highestBidder,omitempty"`
	MinIncrement  string `json:"minIncrement"`
	ReservePrice  string `json:"reservePrice,omitempty"`
	FeeBps        uint32 `json:"feeBps"`
	CreatedAt     int64  `json:"createdAt"`
	EndTime       int64  `json:"endTime"`
	BidCount      uint64 `json:"bidCount"`
	Status        string `json:"status"`
}

type dutchJSON struct {
	ID             string `json:"id"`
	ItemRef        string `json:"itemRef"`
	Seller         string `json:"seller"`
	Buyer          string `json:"buyer,omitempty"`
	StartingPrice  string `json:"startingPrice"`
	ReservePrice   string `json:"reservePrice"`
	Decrement      string `json:"decrement"`
	Interval       int64  `json:"interval"`
	EffectivePrice string `json:"effectivePrice,omitempty"`
	FeeBps         uint32 `json:"feeBps"`
	CreatedAt      int64  `json:"createdAt"`
	EndTime        int64  `json:"endTime"`
	Status         string `json:"status"`
}

func formatAuctionJSON(a *auction.Auction) auctionJSON {
	out := auctionJSON{
		ID:            formatID(a.ID),
		ItemRef:       formatID(a.ItemRef),
		Seller:        formatAddress(a.Seller),
		StartingPrice: a.StartingPrice.String(),
		CurrentPrice:  a.CurrentPrice.String(),
		MinIncrement:  a.MinIncrement.String(),
		FeeBps:        a.FeeBps,
		CreatedAt:     a.CreatedAt,
		EndTime:       a.EndTime,
		BidCount:      a.BidCount,
		Status:        a.Status.String(),
	}
	if a.BidCount > 0 {
		out.HighestBidder = formatAddress(a.HighestBidder)
	}
	if a.ReservePrice != nil {
		out.ReservePrice = a.ReservePrice.String()
	}
	return out
}

func formatDutchJSON(a *auction.DutchAuction, effective string) dutchJSON {
	out := dutchJSON{
		ID:             formatID(a.ID),
		ItemRef:        formatID(a.ItemRef),
		Seller:         formatAddress(a.Seller),
		StartingPrice:  a.StartingPrice.String(),
		ReservePrice:   a.ReservePrice.String(),
		Decrement:      a.Decrement.String(),
		Interval:       a.Interval,
		EffectivePrice: effective,
		FeeBps:         a.FeeBps,
		CreatedAt:      a.CreatedAt,
		EndTime:        a.EndTime,
		Status:         a.Status.String(),
	}
	if a.Status == auction.DutchStatusCompleted {
		out.Buyer = formatAddress(a.Buyer)
	}
	return out
}

func writeAuctionError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	code := codeAuctionInternal
	message := "internal_error"
	switch {
	case errors.Is(err, auction.ErrNotFound):
		status = http.StatusNotFound
		code = codeAuctionNotFound
		message = "not_found"
	case errors.Is(err, auction.ErrUnauthorized), errors.Is(err, auction.ErrSelfBid):
		status = http.StatusForbidden
		code = codeAuctionForbidden
		message = "forbidden"
	case errors.Is(err, auction.ErrInvalidState),
		errors.Is(err, auction.ErrBiddingClosed),
		errors.Is(err, auction.ErrNotEnded),
		errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrHasBids),
		errors.Is(err, auction.ErrInsufficientPayment),
		errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeAuctionConflict
		message = "conflict"
	case errors.Is(err, auction.ErrInvalidPrice),
		errors.Is(err, auction.ErrInvalidDuration),
		errors.Is(err, auction.ErrInvalidIncrement),
		errors.Is(err, auction.ErrInvalidReserve),
		errors.Is(err, auction.ErrInvalidDecrement),
		errors.Is(err, auction.ErrUnreachableReserve):
		status = http.StatusBadRequest
		code = codeAuctionInvalidParams
		message = "invalid_params"
	}
	observability.SettlementMetrics().ObserveError("auction", "", message)
	writeError(w, status, id, code, message, err.Error())
}

func (s *Server) handleAuctionCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionCreateParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	itemRef, err := parseID(params.ItemRef)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	startingPrice, err := parsePositiveBigInt(params.StartingPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	minIncrement, err := parsePositiveBigInt(params.MinIncrement)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	reserve, err := parseOptionalBigInt(params.ReservePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	a, err := s.deps.Auctions.Create(itemRef, seller, startingPrice, params.Duration, minIncrement, reserve, params.FeeBps, params.Nonce)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(a))
}

func (s *Server) handleAuctionGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionIDParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	a, err := s.deps.Auctions.Get(id)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(a))
}

func (s *Server) handleAuctionPlaceBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionBidParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Auctions.PlaceBid(id, bidder, amount); err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	a, err := s.deps.Auctions.Get(id)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(a))
}

func (s *Server) handleAuctionEnd(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionActorParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	a, err := s.deps.Auctions.End(id, caller)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	if a.Status == auction.StatusCompleted {
		observability.SettlementMetrics().ObserveSettledValue("auction", ledger.AssetNative, a.CurrentPrice)
	}
	writeResult(w, req.ID, formatAuctionJSON(a))
}

func (s *Server) handleAuctionCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionActorParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Auctions.Cancel(id, caller); err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	a, err := s.deps.Auctions.Get(id)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(a))
}

func (s *Server) handleAuctionCreateDutch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params dutchCreateParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	itemRef, err := parseID(params.ItemRef)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	startingPrice, err := parsePositiveBigInt(params.StartingPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	reservePrice, err := parsePositiveBigInt(params.ReservePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	decrement, err := parsePositiveBigInt(params.Decrement)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	a, err := s.deps.Auctions.CreateDutch(itemRef, seller, startingPrice, reservePrice, decrement, params.Interval, params.Duration, params.FeeBps, params.Nonce)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatDutchJSON(a, a.StartingPrice.String()))
}

func (s *Server) handleAuctionGetDutch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionIDParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	a, price, err := s.deps.Auctions.GetDutch(id)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatDutchJSON(a, price.String()))
}

func (s *Server) handleAuctionPurchaseDutch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params dutchPurchaseParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	payment, err := parsePositiveBigInt(params.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	a, err := s.deps.Auctions.Purchase(id, buyer, payment)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	observability.SettlementMetrics().ObserveSettledValue("auction", ledger.AssetNative, a.LastPrice)
	writeResult(w, req.ID, formatDutchJSON(a, a.LastPrice.String()))
}

func (s *Server) handleAuctionEndDutch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionActorParams
	if err := parseParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.deps.Auctions.EndDutch(id, caller); err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	a, _, err := s.deps.Auctions.GetDutch(id)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatDutchJSON(a, ""))
}
