// Package domain holds the marketplace entities and the store, cache, and
// blob interfaces implemented by the infrastructure packages.
package domain

import "time"

// Listing is an active sale offer: quantity x item at a unit price by a
// seller. Quantity is always >= 1 while the row exists; full consumption
// deletes the row rather than zeroing it. Duplicate (seller, item kind,
// quality) listings are permitted and are never merged.
type Listing struct {
	ID         string    `json:"id"`
	ItemKind   string    `json:"item_kind"`
	Quantity   int       `json:"quantity"`
	UnitPrice  int       `json:"unit_price"`
	SellerID   string    `json:"-"`
	SellerName string    `json:"seller_name"`
	Quality    string    `json:"quality,omitempty"`
	ListedAt   time.Time `json:"listed_at"`
}

// EscrowEntry is proceeds owed to a seller from a completed purchase line,
// pending claim. Entries are created atomically with the purchase commit and
// deleted atomically (all sibling entries for the seller at once) on claim.
type EscrowEntry struct {
	ID        int64     `json:"id"`
	SellerID  string    `json:"-"`
	BuyerName string    `json:"buyer_name"`
	ItemKind  string    `json:"item_kind"`
	Quantity  int       `json:"quantity"`
	UnitPrice int       `json:"unit_price"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}
