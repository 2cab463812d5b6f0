package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"bookmarket_go/models"
	"bookmarket_go/store"
	"bookmarket_go/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSellExternalBookCreatesRecordAndListing(t *testing.T) {
	f := newFixture(t, nil, models.Book{ISBN: "9788864201795", Title: "Fisica 1", Authors: "Mazzoldi"})

	out, err := f.sell.Sell(context.Background(), SellCommand{
		SellerID: 42, Username: "mario_rossi", ISBN: "9788864201795", Price: "15,50",
	})
	require.NoError(t, err)

	assert.Equal(t, SignalListed, out.Signal)
	assert.Equal(t, SignalFoundExternal, out.Resolution.Signal)
	require.NotNil(t, out.Listing)
	assert.Equal(t, 15.50, out.Listing.Price)
	assert.Equal(t, "15.50", out.Listing.PriceText())
	assert.Equal(t, int64(42), out.Listing.SellerID)

	var book models.Book
	require.NoError(t, f.db.First(&book, "isbn = ?", "9788864201795").Error)
	assert.Equal(t, "Fisica 1", book.Title)
	assert.Equal(t, models.BookSourceCatalog, book.Source)
	assert.Equal(t, int64(1), f.count(t, &models.Listing{}))
}

func TestSellLocalBookSkipsCatalog(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "9783161484100", "Analisi", "Bramanti")

	out, err := f.sell.Sell(context.Background(), SellCommand{
		SellerID: 1, Username: "anna", ISBN: "9783161484100", Price: "20",
	})
	require.NoError(t, err)

	assert.Equal(t, SignalListed, out.Signal)
	assert.Equal(t, SignalFoundLocal, out.Resolution.Signal)
	assert.Equal(t, 0, f.catalog.Calls())
	assert.Equal(t, int64(1), f.count(t, &models.Book{}))
}

func TestSellUnresolvableWritesNothing(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.sell.Sell(context.Background(), SellCommand{
		SellerID: 1, Username: "anna", ISBN: "9788891296566", Price: "5,50",
	})
	require.NoError(t, err)

	assert.Equal(t, SignalUnresolvable, out.Signal)
	assert.Nil(t, out.Listing)
	assert.Zero(t, f.count(t, &models.Book{}))
	assert.Zero(t, f.count(t, &models.Listing{}))
}

func TestSellValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		cmd    SellCommand
		err    error
		signal Signal
	}{
		{"missing username", SellCommand{SellerID: 1, ISBN: "9783161484100", Price: "10"}, ErrUsernameRequired, SignalUsernameRequired},
		{"short isbn", SellCommand{SellerID: 1, Username: "anna", ISBN: "12345", Price: "10"}, ErrInvalidIdentifier, SignalInvalidIdentifier},
		{"isbn with dashes", SellCommand{SellerID: 1, Username: "anna", ISBN: "978-3161484100", Price: "10"}, ErrInvalidIdentifier, SignalInvalidIdentifier},
		{"bad price", SellCommand{SellerID: 1, Username: "anna", ISBN: "9783161484100", Price: "dieci"}, ErrInvalidPrice, SignalInvalidPrice},
		{"zero price", SellCommand{SellerID: 1, Username: "anna", ISBN: "9783161484100", Price: "0"}, ErrInvalidPrice, SignalInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sell.Sell(context.Background(), tt.cmd)
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.signal, SignalFor(err))
		})
	}
	assert.Equal(t, 0, f.catalog.Calls())
}

func TestPriceNormalizationIsEquivalent(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "9783161484100", "Analisi", "Bramanti")
	book := models.Book{ISBN: "9783161484100"}

	for i, raw := range []string{"15", "15.50", "15,50"} {
		l, err := f.listings.ListBook(context.Background(), book, false, Seller{ID: int64(i + 1), Username: "anna"}, raw)
		require.NoError(t, err)
		if raw == "15" {
			assert.Equal(t, "15.00", l.PriceText())
		} else {
			assert.Equal(t, "15.50", l.PriceText())
		}
	}
}

func TestRemoveListing(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "9783161484100", "Analisi", "Bramanti")
	ctx := context.Background()

	l, err := f.listings.ListBook(ctx, models.Book{ISBN: "9783161484100"}, false, Seller{ID: 7, Username: "owner"}, "12")
	require.NoError(t, err)

	err = f.listings.RemoveListing(ctx, 8, l.ID)
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, SignalNotOwner, SignalFor(err))
	assert.Equal(t, int64(1), f.count(t, &models.Listing{}))

	require.NoError(t, f.listings.RemoveListing(ctx, 7, l.ID))
	assert.Zero(t, f.count(t, &models.Listing{}))

	err = f.listings.RemoveListing(ctx, 7, l.ID)
	require.ErrorIs(t, err, ErrListingNotFound)
	assert.Equal(t, SignalNotFound, SignalFor(err))
}

func TestListBookStorageError(t *testing.T) {
	f := newFixture(t, nil)
	f.closeDB(t)

	_, err := f.listings.ListBook(context.Background(), models.Book{ISBN: "9783161484100", Title: "x"}, true, Seller{ID: 1, Username: "anna"}, "3")
	require.ErrorIs(t, err, store.ErrDatabase)
	assert.Equal(t, SignalDBError, SignalFor(err))
}

func TestListBookConcurrentFirstListings(t *testing.T) {
	f := newFixture(t, nil)
	book := models.Book{ISBN: "9788864201795", Title: "Fisica 1", Authors: "Mazzoldi"}

	const sellers = 8
	var wg sync.WaitGroup
	errs := make(chan error, sellers)
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.listings.ListBook(context.Background(), book, true, Seller{ID: id, Username: fmt.Sprintf("seller%d", id)}, "9.90")
			errs <- err
		}(int64(i + 1))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.count(t, &models.Book{}))
	assert.Equal(t, int64(sellers), f.count(t, &models.Listing{}))
}

func TestMyListings(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "9783161484100", "Analisi", "Bramanti")
	f.seedBook(t, "9788864201795", "Fisica 1", "Mazzoldi")
	ctx := context.Background()

	_, err := f.listings.ListBook(ctx, models.Book{ISBN: "9783161484100"}, false, Seller{ID: 1, Username: "anna"}, "10")
	require.NoError(t, err)
	_, err = f.listings.ListBook(ctx, models.Book{ISBN: "9788864201795"}, false, Seller{ID: 1, Username: "anna"}, "12")
	require.NoError(t, err)
	_, err = f.listings.ListBook(ctx, models.Book{ISBN: "9788864201795"}, false, Seller{ID: 2, Username: "bruno"}, "11")
	require.NoError(t, err)

	mine, err := f.listings.MyListings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.NotNil(t, mine[0].Book)
	assert.Equal(t, "Analisi", mine[0].Book.Title)
	assert.Equal(t, "Fisica 1", mine[1].Book.Title)
}

func TestSearchUsesCacheAndInvalidates(t *testing.T) {
	mr, cache := testutil.NewTestRedis(t)
	f := newFixture(t, cache)
	f.seedBook(t, "9788808123456", "I Malavoglia", "Giovanni Verga")
	ctx := context.Background()

	_, err := f.listings.ListBook(ctx, models.Book{ISBN: "9788808123456"}, false, Seller{ID: 1, Username: "anna"}, "8")
	require.NoError(t, err)
	_, err = f.listings.ListBook(ctx, models.Book{ISBN: "9788808123456"}, false, Seller{ID: 2, Username: "bruno"}, "6,50")
	require.NoError(t, err)

	rows, err := f.listings.Search(ctx, "  Verga ")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 6.50, rows[0].Price)
	require.NotNil(t, rows[0].Book)
	assert.Equal(t, "I Malavoglia", rows[0].Book.Title)
	assert.True(t, mr.Exists(searchCachePrefix+"verga"))

	byISBN, err := f.listings.Search(ctx, "9788808123456")
	require.NoError(t, err)
	assert.Len(t, byISBN, 2)

	cached, err := f.listings.Search(ctx, "verga")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	require.NoError(t, f.listings.RemoveListing(ctx, 2, rows[0].ID))
	assert.False(t, mr.Exists(searchCachePrefix+"verga"))

	rows, err = f.listings.Search(ctx, "verga")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	empty, err := f.listings.Search(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHotQueries(t *testing.T) {
	_, cache := testutil.NewTestRedis(t)
	f := newFixture(t, cache)
	ctx := context.Background()

	for _, q := range []string{"verga", "Verga", "fisica", "verga", "fisica", "analisi"} {
		_, err := f.listings.Search(ctx, q)
		require.NoError(t, err)
	}

	hot, err := f.listings.HotQueries(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"verga", "fisica"}, hot)

	none, err := newFixture(t, nil).listings.HotQueries(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "9788808123456", "I Malavoglia", "Giovanni Verga")
	f.seedBook(t, "9788804668237", "100% Verga_Novelle!", "Giovanni Verga")
	ctx := context.Background()

	_, err := f.listings.ListBook(ctx, models.Book{ISBN: "9788808123456"}, false, Seller{ID: 1, Username: "anna"}, "8")
	require.NoError(t, err)
	_, err = f.listings.ListBook(ctx, models.Book{ISBN: "9788804668237"}, false, Seller{ID: 1, Username: "anna"}, "9")
	require.NoError(t, err)

	for _, q := range []string{"__", "%", "!"} {
		rows, err := f.listings.Search(ctx, q)
		require.NoError(t, err, q)
		if q == "__" {
			assert.Empty(t, rows, q)
			continue
		}
		require.Len(t, rows, 1, q)
		assert.Equal(t, "9788804668237", rows[0].ISBN, q)
	}

	rows, err := f.listings.Search(ctx, "verga_")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "9788804668237", rows[0].ISBN)
}
