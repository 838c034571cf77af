package market

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// ---------------------------------------------------------------------------
// in-memory fakes
// ---------------------------------------------------------------------------

type fakeListingStore struct {
	listings []domain.Listing
}

func (f *fakeListingStore) Insert(_ context.Context, l domain.Listing) error {
	f.listings = append(f.listings, l)
	return nil
}

func (f *fakeListingStore) ListAll(_ context.Context) ([]domain.Listing, error) {
	out := make([]domain.Listing, len(f.listings))
	copy(out, f.listings)
	return out, nil
}

func (f *fakeListingStore) ListBySeller(_ context.Context, sellerID string) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range f.listings {
		if l.SellerID == sellerID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ListedAt.Before(out[j].ListedAt) })
	return out, nil
}

func (f *fakeListingStore) Resolve(_ context.Context, itemKind, sellerName string) (domain.Listing, error) {
	for _, l := range f.listings {
		if l.ItemKind == itemKind && l.SellerName == sellerName {
			return l, nil
		}
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (f *fakeListingStore) DeleteOwned(_ context.Context, sellerID, id string) error {
	for i, l := range f.listings {
		if l.ID == id && l.SellerID == sellerID {
			f.listings = append(f.listings[:i], f.listings[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeListingStore) Count(_ context.Context) (int64, error) {
	return int64(len(f.listings)), nil
}

func (f *fakeListingStore) CountSellers(_ context.Context) (int64, error) {
	sellers := map[string]bool{}
	for _, l := range f.listings {
		sellers[l.SellerID] = true
	}
	return int64(len(sellers)), nil
}

func (f *fakeListingStore) take(itemKind, sellerName string, qty int) (domain.Listing, bool) {
	for i, l := range f.listings {
		if l.ItemKind != itemKind || l.SellerName != sellerName {
			continue
		}
		if l.Quantity < qty {
			return domain.Listing{}, false
		}
		if l.Quantity == qty {
			f.listings = append(f.listings[:i], f.listings[i+1:]...)
		} else {
			f.listings[i].Quantity -= qty
		}
		return l, true
	}
	return domain.Listing{}, false
}

type fakeEscrowStore struct {
	entries []domain.EscrowEntry
	nextID  int64
}

func (f *fakeEscrowStore) ListBySeller(_ context.Context, sellerID string) ([]domain.EscrowEntry, error) {
	var out []domain.EscrowEntry
	for _, e := range f.entries {
		if e.SellerID == sellerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEscrowStore) Claim(_ context.Context, sellerID string) (int, int, error) {
	total, count := 0, 0
	var keep []domain.EscrowEntry
	for _, e := range f.entries {
		if e.SellerID == sellerID {
			total += e.Total
			count++
			continue
		}
		keep = append(keep, e)
	}
	f.entries = keep
	return total, count, nil
}

type fakeTransactionStore struct {
	records []domain.TransactionRecord
}

func (f *fakeTransactionStore) Append(_ context.Context, rec domain.TransactionRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeTransactionStore) ListByActor(_ context.Context, actorID string) ([]domain.TransactionRecord, error) {
	var out []domain.TransactionRecord
	for _, r := range f.records {
		if r.ActorID == actorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTransactionStore) CountByActorKind(_ context.Context, actorID string, kind domain.TransactionKind) (int64, error) {
	var n int64
	for _, r := range f.records {
		if r.ActorID == actorID && r.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (f *fakeTransactionStore) Count(_ context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

func (f *fakeTransactionStore) ListBefore(_ context.Context, before time.Time) ([]domain.TransactionRecord, error) {
	var out []domain.TransactionRecord
	for _, r := range f.records {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeSettlement mirrors the store-level commit: re-resolve each line
// against the listing fake, skip lost lines, credit escrow, and append one
// purchase record.
type fakeSettlement struct {
	listings     *fakeListingStore
	escrow       *fakeEscrowStore
	transactions *fakeTransactionStore
}

func (f *fakeSettlement) CommitPurchase(ctx context.Context, buyerID, buyerName string, lines []domain.PurchaseLine) (domain.PurchaseReceipt, error) {
	var receipt domain.PurchaseReceipt
	now := time.Now().UTC()

	for _, line := range lines {
		l, ok := f.listings.take(line.ItemKind, line.SellerName, line.Quantity)
		if !ok {
			continue
		}

		cost := l.UnitPrice * line.Quantity
		f.escrow.nextID++
		f.escrow.entries = append(f.escrow.entries, domain.EscrowEntry{
			ID:        f.escrow.nextID,
			SellerID:  l.SellerID,
			BuyerName: buyerName,
			ItemKind:  l.ItemKind,
			Quantity:  line.Quantity,
			UnitPrice: l.UnitPrice,
			Total:     cost,
			CreatedAt: now,
		})

		receipt.Items = append(receipt.Items, domain.TransactionLine{
			ItemKind:   l.ItemKind,
			Quantity:   line.Quantity,
			UnitPrice:  l.UnitPrice,
			SellerName: l.SellerName,
			Quality:    l.Quality,
		})
		receipt.TotalCost += cost
	}

	rec := domain.TransactionRecord{
		ID:        uuid.NewString(),
		Kind:      domain.TransactionPurchase,
		ActorID:   buyerID,
		ActorName: buyerName,
		Lines:     receipt.Items,
		TotalCost: receipt.TotalCost,
		CreatedAt: now,
	}
	return receipt, f.transactions.Append(ctx, rec)
}

type fakeBus struct {
	published map[string][][]byte
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

// ---------------------------------------------------------------------------
// fixture
// ---------------------------------------------------------------------------

type fixture struct {
	svc          *Service
	listings     *fakeListingStore
	escrow       *fakeEscrowStore
	transactions *fakeTransactionStore
	bus          *fakeBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		listings:     &fakeListingStore{},
		escrow:       &fakeEscrowStore{},
		transactions: &fakeTransactionStore{},
		bus:          &fakeBus{},
	}
	settlement := &fakeSettlement{
		listings:     f.listings,
		escrow:       f.escrow,
		transactions: f.transactions,
	}
	f.svc = NewService(f.listings, f.escrow, f.transactions, settlement, f.bus,
		slog.New(slog.DiscardHandler))
	return f
}

func (f *fixture) seed(t *testing.T, sellerID, sellerName, itemKind string, qty, price int) domain.Listing {
	t.Helper()
	l := domain.Listing{
		ID:         uuid.NewString(),
		ItemKind:   itemKind,
		Quantity:   qty,
		UnitPrice:  price,
		SellerID:   sellerID,
		SellerName: sellerName,
		ListedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.listings.Insert(context.Background(), l))
	return l
}

var buyer = domain.Claims{IdentityID: "buyer-1", Name: "New Arrivals"}
var seller = domain.Claims{IdentityID: "seller-1", Name: "Dusty Hollow"}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestBuySingleLine(t *testing.T) {
	f := newFixture(t)
	f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)

	receipt, err := f.svc.Buy(context.Background(), buyer, BuyRequest{
		Lines:       []domain.PurchaseLine{{ItemKind: "ironKnife", Quantity: 3, SellerName: seller.Name}},
		ClientFunds: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, 120, receipt.TotalCost)
	require.Len(t, receipt.Items, 1)
	assert.Equal(t, 3, receipt.Items[0].Quantity)

	// Stock decremented, not deleted.
	l, err := f.listings.Resolve(context.Background(), "ironKnife", seller.Name)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Quantity)

	// Seller credited.
	entries, err := f.escrow.ListBySeller(context.Background(), seller.IdentityID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 120, entries[0].Total)
	assert.Equal(t, buyer.Name, entries[0].BuyerName)

	// One purchase record with the actual cost.
	require.Len(t, f.transactions.records, 1)
	assert.Equal(t, domain.TransactionPurchase, f.transactions.records[0].Kind)
	assert.Equal(t, 120, f.transactions.records[0].TotalCost)

	assert.Len(t, f.bus.published[domain.ChannelSale], 1)
}

func TestBuyFullConsumptionDeletesListing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)

	_, err := f.svc.Buy(context.Background(), buyer, BuyRequest{
		Lines:       []domain.PurchaseLine{{ItemKind: "ironKnife", Quantity: 5, SellerName: seller.Name}},
		ClientFunds: 200,
	})
	require.NoError(t, err)

	_, err = f.listings.Resolve(context.Background(), "ironKnife", seller.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuyRejectsWholeBatch(t *testing.T) {
	tests := []struct {
		name string
		req  BuyRequest
		want error
	}{
		{
			name: "unknown item",
			req: BuyRequest{
				Lines: []domain.PurchaseLine{
					{ItemKind: "ironKnife", Quantity: 1, SellerName: seller.Name},
					{ItemKind: "plasteel", Quantity: 1, SellerName: seller.Name},
				},
				ClientFunds: 1000,
			},
			want: domain.ErrItemUnavailable,
		},
		{
			name: "insufficient stock",
			req: BuyRequest{
				Lines:       []domain.PurchaseLine{{ItemKind: "ironKnife", Quantity: 6, SellerName: seller.Name}},
				ClientFunds: 1000,
			},
			want: domain.ErrInsufficientStock,
		},
		{
			name: "insufficient funds",
			req: BuyRequest{
				Lines:       []domain.PurchaseLine{{ItemKind: "ironKnife", Quantity: 5, SellerName: seller.Name}},
				ClientFunds: 199,
			},
			want: domain.ErrInsufficientFunds,
		},
		{
			name: "empty batch",
			req:  BuyRequest{ClientFunds: 1000},
			want: domain.ErrItemUnavailable,
		},
		{
			name: "non-positive quantity",
			req: BuyRequest{
				Lines:       []domain.PurchaseLine{{ItemKind: "ironKnife", Quantity: 0, SellerName: seller.Name}},
				ClientFunds: 1000,
			},
			want: domain.ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)

			_, err := f.svc.Buy(context.Background(), buyer, tt.req)
			assert.ErrorIs(t, err, tt.want)

			// Nothing applied.
			l, err := f.listings.Resolve(context.Background(), "ironKnife", seller.Name)
			require.NoError(t, err)
			assert.Equal(t, 5, l.Quantity)
			assert.Empty(t, f.escrow.entries)
			assert.Empty(t, f.transactions.records)
		})
	}
}

func TestBuySkipsLineLostBetweenPhases(t *testing.T) {
	f := newFixture(t)
	f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)
	other := f.seed(t, "seller-2", "Rimhaven", "plasteel", 10, 8)

	// A concurrent buyer drains the knife listing after our validate phase
	// would have seen it. The commit skips that line and settles the rest.
	settle := &fakeSettlement{listings: f.listings, escrow: f.escrow, transactions: f.transactions}
	raced := &racingSettlement{inner: settle, listings: f.listings, drain: "ironKnife", drainSeller: seller.Name}
	f.svc = NewService(f.listings, f.escrow, f.transactions, raced, f.bus,
		slog.New(slog.DiscardHandler))

	receipt, err := f.svc.Buy(context.Background(), buyer, BuyRequest{
		Lines: []domain.PurchaseLine{
			{ItemKind: "ironKnife", Quantity: 5, SellerName: seller.Name},
			{ItemKind: "plasteel", Quantity: 10, SellerName: other.SellerName},
		},
		ClientFunds: 500,
	})
	require.NoError(t, err)

	require.Len(t, receipt.Items, 1)
	assert.Equal(t, "plasteel", receipt.Items[0].ItemKind)
	assert.Equal(t, 80, receipt.TotalCost)

	// The single purchase record reflects what actually settled.
	require.Len(t, f.transactions.records, 1)
	assert.Equal(t, 80, f.transactions.records[0].TotalCost)
	assert.Len(t, f.transactions.records[0].Lines, 1)
}

// racingSettlement drains one listing immediately before delegating, to
// model a concurrent buyer winning the race between validate and commit.
type racingSettlement struct {
	inner       *fakeSettlement
	listings    *fakeListingStore
	drain       string
	drainSeller string
}

func (r *racingSettlement) CommitPurchase(ctx context.Context, buyerID, buyerName string, lines []domain.PurchaseLine) (domain.PurchaseReceipt, error) {
	for {
		if _, ok := r.listings.take(r.drain, r.drainSeller, 1); !ok {
			break
		}
	}
	return r.inner.CommitPurchase(ctx, buyerID, buyerName, lines)
}

func TestSellCreatesListingsAndRecord(t *testing.T) {
	f := newFixture(t)

	listings, err := f.svc.Sell(context.Background(), seller, []SellItem{
		{ItemKind: "ironKnife", Quantity: 5, UnitPrice: 40},
		{ItemKind: "cloth", Quantity: 80, UnitPrice: 2, Quality: "normal"},
	})
	require.NoError(t, err)
	require.Len(t, listings, 2)

	for _, l := range listings {
		assert.NotEmpty(t, l.ID)
		assert.Equal(t, seller.IdentityID, l.SellerID)
		assert.Equal(t, seller.Name, l.SellerName)
	}

	// One aggregated listing record at zero cost.
	require.Len(t, f.transactions.records, 1)
	rec := f.transactions.records[0]
	assert.Equal(t, domain.TransactionListing, rec.Kind)
	assert.Equal(t, 0, rec.TotalCost)
	assert.Len(t, rec.Lines, 2)

	assert.Len(t, f.bus.published[domain.ChannelListing], 1)
}

func TestSellRejectsInvalidOffers(t *testing.T) {
	f := newFixture(t)

	for _, items := range [][]SellItem{
		nil,
		{{ItemKind: "", Quantity: 1, UnitPrice: 1}},
		{{ItemKind: "cloth", Quantity: 0, UnitPrice: 1}},
		{{ItemKind: "cloth", Quantity: 1, UnitPrice: -1}},
	} {
		_, err := f.svc.Sell(context.Background(), seller, items)
		assert.Error(t, err)
	}
}

func TestDuplicateListingsNeverMerged(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Sell(context.Background(), seller, []SellItem{
		{ItemKind: "cloth", Quantity: 10, UnitPrice: 2},
	})
	require.NoError(t, err)
	_, err = f.svc.Sell(context.Background(), seller, []SellItem{
		{ItemKind: "cloth", Quantity: 10, UnitPrice: 2},
	})
	require.NoError(t, err)

	all, err := f.svc.Listings(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRemoveScopedToOwner(t *testing.T) {
	f := newFixture(t)
	l := f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)

	err := f.svc.Remove(context.Background(), buyer, l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.svc.Remove(context.Background(), seller, l.ID))
	err = f.svc.Remove(context.Background(), seller, l.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveByIndex(t *testing.T) {
	f := newFixture(t)
	first := f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)
	second := f.seed(t, seller.IdentityID, seller.Name, "cloth", 80, 2)

	removed, err := f.svc.RemoveByIndex(context.Background(), seller, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, removed.ID)

	// After removal the remaining listing shifts into position 0.
	removed, err = f.svc.RemoveByIndex(context.Background(), seller, 0)
	require.NoError(t, err)
	assert.Equal(t, second.ID, removed.ID)
}

func TestRemoveByIndexOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)

	_, err := f.svc.RemoveByIndex(context.Background(), seller, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidIndex)
	_, err = f.svc.RemoveByIndex(context.Background(), seller, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidIndex)
}

func TestClaimCollectsAllAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)
	f.seed(t, seller.IdentityID, seller.Name, "cloth", 10, 3)

	_, err := f.svc.Buy(context.Background(), buyer, BuyRequest{
		Lines: []domain.PurchaseLine{
			{ItemKind: "ironKnife", Quantity: 1, SellerName: seller.Name},
		},
		ClientFunds: 100,
	})
	require.NoError(t, err)
	_, err = f.svc.Buy(context.Background(), buyer, BuyRequest{
		Lines: []domain.PurchaseLine{
			{ItemKind: "cloth", Quantity: 5, SellerName: seller.Name},
		},
		ClientFunds: 100,
	})
	require.NoError(t, err)

	total, count, err := f.svc.Claim(context.Background(), seller)
	require.NoError(t, err)
	assert.Equal(t, 55, total)
	assert.Equal(t, 2, count)

	// Second claim finds nothing and still succeeds.
	total, count, err = f.svc.Claim(context.Background(), seller)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, count)
}

func TestUserInfo(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Sell(context.Background(), seller, []SellItem{
		{ItemKind: "ironKnife", Quantity: 5, UnitPrice: 40},
		{ItemKind: "cloth", Quantity: 80, UnitPrice: 2},
	})
	require.NoError(t, err)

	_, err = f.svc.Buy(context.Background(), buyer, BuyRequest{
		Lines:       []domain.PurchaseLine{{ItemKind: "ironKnife", Quantity: 2, SellerName: seller.Name}},
		ClientFunds: 100,
	})
	require.NoError(t, err)

	info, err := f.svc.UserInfo(context.Background(), seller)
	require.NoError(t, err)
	assert.Equal(t, 2, info.ActiveListings)
	assert.Equal(t, 1, info.PendingEntries)
	assert.Equal(t, 80, info.PendingTotal)
	assert.Equal(t, int64(1), info.ListingBatches)
	assert.Zero(t, info.Purchases)

	info, err = f.svc.UserInfo(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Purchases)
	assert.Zero(t, info.ActiveListings)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.seed(t, seller.IdentityID, seller.Name, "ironKnife", 5, 40)
	f.seed(t, "seller-2", "Rimhaven", "cloth", 10, 3)

	_, err := f.svc.Buy(context.Background(), buyer, BuyRequest{
		Lines:       []domain.PurchaseLine{{ItemKind: "cloth", Quantity: 10, SellerName: "Rimhaven"}},
		ClientFunds: 100,
	})
	require.NoError(t, err)

	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.ActiveListings)
	assert.Equal(t, int64(1), st.ActiveSellers)
	assert.Equal(t, int64(1), st.TotalTransactions)
}
