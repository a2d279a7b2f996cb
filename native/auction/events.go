package auction

import (
	"encoding/hex"
	"strconv"

	"agora/core/events"
	"agora/core/types"
)

const (
	EventTypeCreated        = "auction.created"
	EventTypeBid            = "auction.bid"
	EventTypeEnded          = "auction.ended"
	EventTypeCancelled      = "auction.cancelled"
	EventTypeDutchCreated   = "auction.dutch.created"
	EventTypeDutchPurchased = "auction.dutch.purchased"
	EventTypeDutchEnded     = "auction.dutch.ended"
)

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

func englishAttrs(a *Auction, ts int64) map[string]string {
	attrs := map[string]string{"timestamp": strconv.FormatInt(ts, 10)}
	if a == nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(a.ID[:])
	attrs["item"] = hex.EncodeToString(a.ItemRef[:])
	attrs["seller"] = hex.EncodeToString(a.Seller[:])
	attrs["status"] = a.Status.String()
	attrs["bids"] = strconv.FormatUint(a.BidCount, 10)
	if a.CurrentPrice != nil {
		attrs["price"] = a.CurrentPrice.String()
	}
	if a.HasBids() {
		attrs["highestBidder"] = hex.EncodeToString(a.HighestBidder[:])
	}
	return attrs
}

func dutchAttrs(d *DutchAuction, ts int64) map[string]string {
	attrs := map[string]string{"timestamp": strconv.FormatInt(ts, 10)}
	if d == nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(d.ID[:])
	attrs["item"] = hex.EncodeToString(d.ItemRef[:])
	attrs["seller"] = hex.EncodeToString(d.Seller[:])
	attrs["status"] = d.Status.String()
	if d.LastPrice != nil {
		attrs["price"] = d.LastPrice.String()
	}
	if d.Status == DutchStatusCompleted {
		attrs["buyer"] = hex.EncodeToString(d.Buyer[:])
	}
	return attrs
}

// NewCreatedEvent is emitted when an English auction opens.
func NewCreatedEvent(a *Auction, ts int64) events.Event {
	return auctionEvent{evt: &types.Event{Type: EventTypeCreated, Attributes: englishAttrs(a, ts)}}
}

// NewBidEvent is emitted when a bid is accepted.
func NewBidEvent(a *Auction, bidder [20]byte, ts int64) events.Event {
	attrs := englishAttrs(a, ts)
	attrs["bidder"] = hex.EncodeToString(bidder[:])
	return auctionEvent{evt: &types.Event{Type: EventTypeBid, Attributes: attrs}}
}

// NewEndedEvent is emitted when an English auction reaches a terminal
// state through End.
func NewEndedEvent(a *Auction, ts int64) events.Event {
	return auctionEvent{evt: &types.Event{Type: EventTypeEnded, Attributes: englishAttrs(a, ts)}}
}

// NewCancelledEvent is emitted when a bidless auction is withdrawn.
func NewCancelledEvent(a *Auction, ts int64) events.Event {
	return auctionEvent{evt: &types.Event{Type: EventTypeCancelled, Attributes: englishAttrs(a, ts)}}
}

// NewDutchCreatedEvent is emitted when a Dutch auction opens.
func NewDutchCreatedEvent(d *DutchAuction, ts int64) events.Event {
	return auctionEvent{evt: &types.Event{Type: EventTypeDutchCreated, Attributes: dutchAttrs(d, ts)}}
}

// NewDutchPurchasedEvent is emitted when a Dutch auction settles.
func NewDutchPurchasedEvent(d *DutchAuction, ts int64) events.Event {
	return auctionEvent{evt: &types.Event{Type: EventTypeDutchPurchased, Attributes: dutchAttrs(d, ts)}}
}

// NewDutchEndedEvent is emitted when an unsold Dutch auction closes.
func NewDutchEndedEvent(d *DutchAuction, ts int64) events.Event {
	return auctionEvent{evt: &types.Event{Type: EventTypeDutchEnded, Attributes: dutchAttrs(d, ts)}}
}
