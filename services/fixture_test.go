package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"bookmarket_go/locker"
	"bookmarket_go/models"
	"bookmarket_go/store"
	"bookmarket_go/testutil"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCatalog struct {
	mu    sync.Mutex
	books map[string]models.Book
	calls int
}

func newFakeCatalog(books ...models.Book) *fakeCatalog {
	f := &fakeCatalog{books: make(map[string]models.Book)}
	for _, b := range books {
		f.books[b.ISBN] = b
	}
	return f
}

func (f *fakeCatalog) Lookup(_ context.Context, isbn string) (models.Book, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	b, ok := f.books[isbn]
	return b, ok
}

func (f *fakeCatalog) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	admins []Notification
	users  []Notification
}

func (r *recordingNotifier) NotifyAdmins(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins = append(r.admins, n)
	return nil
}

func (r *recordingNotifier) NotifyUser(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, n)
	return nil
}

func (r *recordingNotifier) Users() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.users...)
}

func (r *recordingNotifier) Admins() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.admins...)
}

type fixture struct {
	db       *gorm.DB
	gw       *store.Gateway
	catalog  *fakeCatalog
	notifier *recordingNotifier
	resolver *Resolver
	listings *ListingService
	sell     *SellService
	requests *RequestService
}

func newFixture(t *testing.T, cache *redis.Client, catalogBooks ...models.Book) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	gw := store.NewGateway(db)
	locks := locker.NewMemoryLocker()
	cat := newFakeCatalog(catalogBooks...)
	notifier := &recordingNotifier{}

	resolver := NewResolver(gw, cat)
	listings := NewListingService(gw, locks, cache)

	return &fixture{
		db:       db,
		gw:       gw,
		catalog:  cat,
		notifier: notifier,
		resolver: resolver,
		listings: listings,
		sell:     NewSellService(resolver, listings),
		requests: NewRequestService(gw, listings, locks, notifier),
	}
}

func (f *fixture) seedBook(t *testing.T, isbn, title, authors string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Book{ISBN: isbn, Title: title, Authors: authors}).Error)
}

func (f *fixture) count(t *testing.T, model any, where ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// failListingsFor makes every listing insert for the given seller fail.
func (f *fixture) failListingsFor(t *testing.T, sellerID int64) {
	t.Helper()
	require.NoError(t, f.db.Exec(fmt.Sprintf(
		"CREATE TRIGGER fail_listing_%[1]d BEFORE INSERT ON listings WHEN NEW.seller_id = %[1]d BEGIN SELECT RAISE(ABORT, 'listing rejected'); END",
		sellerID,
	)).Error)
}

func (f *fixture) closeDB(t *testing.T) {
	t.Helper()
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
