package domain

import "time"

// TransactionKind distinguishes purchase records from listing records in the
// append-only history.
type TransactionKind string

const (
	TransactionPurchase TransactionKind = "purchase"
	TransactionListing  TransactionKind = "listing"
)

// TransactionLine is one itemized line inside a TransactionRecord.
type TransactionLine struct {
	ItemKind   string `json:"item_kind"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int    `json:"unit_price"`
	SellerName string `json:"seller_name,omitempty"`
	Quality    string `json:"quality,omitempty"`
}

// TransactionRecord is one append-only history entry: either a buyer's
// itemized purchase with its total cost, or a seller's listing batch with a
// total cost fixed at zero. Records are never mutated or deleted.
type TransactionRecord struct {
	ID        string            `json:"id"`
	Kind      TransactionKind   `json:"kind"`
	ActorID   string            `json:"-"`
	ActorName string            `json:"actor_name"`
	Lines     []TransactionLine `json:"lines"`
	TotalCost int               `json:"total_cost"`
	CreatedAt time.Time         `json:"created_at"`
}

// PurchaseLine identifies one requested line of a buy batch. Listings are
// addressed by (item kind, seller display name), which is unique among
// active listings for purchase purposes.
type PurchaseLine struct {
	ItemKind   string `json:"item_kind"`
	Quantity   int    `json:"quantity"`
	SellerName string `json:"seller_name"`
}

// PurchaseReceipt is the outcome of the commit phase of a buy. Under
// concurrent contention the receipt may cover fewer lines, and a lower
// total, than the validate phase saw.
type PurchaseReceipt struct {
	Items     []TransactionLine `json:"items"`
	TotalCost int               `json:"total_cost"`
}
