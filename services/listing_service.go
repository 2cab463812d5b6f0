package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookmarket_go/locker"
	"bookmarket_go/middleware"
	"bookmarket_go/models"
	"bookmarket_go/store"
	"bookmarket_go/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	searchCachePrefix = "search:listings:"
	searchCacheTTL    = 5 * time.Minute
	searchLimit       = 50
	hotSearchKey      = "search:hot"
	hotSearchTTL      = 24 * time.Hour
)

// Seller 发布者身份
type Seller struct {
	ID       int64
	Username string
}

// ListingService 在售发布服务
type ListingService struct {
	gw    *store.Gateway
	locks locker.Locker
	cache *redis.Client
}

// NewListingService 创建发布服务，cache 可以为 nil
func NewListingService(gw *store.Gateway, locks locker.Locker, cache *redis.Client) *ListingService {
	return &ListingService{gw: gw, locks: locks, cache: cache}
}

// ListBook 为书籍创建一条在售记录
// isNew 为 true 时先登记书籍（已存在则忽略），两步都在该ISBN的写锁内完成
func (s *ListingService) ListBook(ctx context.Context, book models.Book, isNew bool, seller Seller, price string) (models.Listing, error) {
	value, _, err := utils.NormalizePrice(price)
	if err != nil {
		return models.Listing{}, err
	}

	unlock, err := s.locks.Lock(ctx, book.ISBN)
	if err != nil {
		return models.Listing{}, err
	}
	defer unlock()

	return s.listBookLocked(ctx, book, isNew, seller, value)
}

// listBookLocked 调用方必须已持有该ISBN的写锁
func (s *ListingService) listBookLocked(ctx context.Context, book models.Book, isNew bool, seller Seller, price float64) (models.Listing, error) {
	if isNew {
		record := models.Book{
			ISBN:    book.ISBN,
			Title:   book.Title,
			Authors: book.Authors,
			Source:  book.Source,
		}
		if record.Source == "" {
			record.Source = models.BookSourceCatalog
		}
		if _, err := s.gw.Execute(ctx, store.Insert{Value: &record, IgnoreConflict: true}); err != nil {
			return models.Listing{}, err
		}
	}

	listing := models.Listing{
		ISBN:     book.ISBN,
		SellerID: seller.ID,
		Seller:   seller.Username,
		Price:    price,
	}
	if _, err := s.gw.Execute(ctx, store.Insert{Value: &listing}); err != nil {
		return models.Listing{}, err
	}

	s.clearSearchCache(ctx)
	middleware.InfoLogger("📚 listing created",
		zap.Uint("listing_id", listing.ID),
		zap.String("isbn", listing.ISBN),
		zap.Int64("seller_id", seller.ID),
	)

	return listing, nil
}

// RemoveListing 删除卖家自己的在售记录，非本人发布时不执行删除
func (s *ListingService) RemoveListing(ctx context.Context, sellerID int64, listingID uint) error {
	var rows []models.Listing
	if _, err := s.gw.Execute(ctx, store.Select{
		Dest: &rows,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			return db.Where("id = ?", listingID).Limit(1)
		}},
	}); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrListingNotFound
	}
	if rows[0].SellerID != sellerID {
		return ErrNotOwner
	}

	res, err := s.gw.Execute(ctx, store.Delete{
		Model: &models.Listing{},
		Where: "id = ? AND seller_id = ?",
		Args:  []any{listingID, sellerID},
	})
	if err != nil {
		return err
	}
	if res.Affected == 0 {
		return ErrListingNotFound
	}

	s.clearSearchCache(ctx)
	middleware.InfoLogger("🗑️ listing removed",
		zap.Uint("listing_id", listingID),
		zap.Int64("seller_id", sellerID),
	)
	return nil
}

// MyListings 返回卖家的全部在售记录
func (s *ListingService) MyListings(ctx context.Context, sellerID int64) ([]models.Listing, error) {
	var rows []models.Listing
	_, err := s.gw.Execute(ctx, store.Select{
		Dest: &rows,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			return db.Preload("Book").Where("seller_id = ?", sellerID).Order("created_at ASC, id ASC")
		}},
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// likeEscaper 以 '!' 转义 LIKE 通配符
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search 按书名、作者或ISBN搜索在售记录，按价格升序
func (s *ListingService) Search(ctx context.Context, text string) ([]models.Listing, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return []models.Listing{}, nil
	}

	s.recordQuery(ctx, text)

	cacheKey := searchCachePrefix + text
	if cached, ok := s.cachedSearch(ctx, cacheKey); ok {
		return cached, nil
	}

	pattern := "%" + likeEscaper.Replace(text) + "%"
	var rows []models.Listing
	_, err := s.gw.Execute(ctx, store.Select{
		Dest: &rows,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			return db.Select("listings.*").
				Joins("JOIN books ON books.isbn = listings.isbn").
				Where("LOWER(books.title) LIKE ? ESCAPE '!' OR LOWER(books.authors) LIKE ? ESCAPE '!' OR listings.isbn = ?", pattern, pattern, text).
				Preload("Book").
				Order("listings.price ASC, listings.id ASC").
				Limit(searchLimit)
		}},
	})
	if err != nil {
		return nil, err
	}

	s.storeSearch(ctx, cacheKey, rows)
	return rows, nil
}

// HotQueries 最近一天的热门搜索词
func (s *ListingService) HotQueries(ctx context.Context, limit int) ([]string, error) {
	if s.cache == nil {
		return []string{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.cache.ZRevRange(ctx, hotSearchKey, 0, int64(limit-1)).Result()
}

func (s *ListingService) recordQuery(ctx context.Context, text string) {
	if s.cache == nil {
		return
	}
	pipe := s.cache.Pipeline()
	pipe.ZIncrBy(ctx, hotSearchKey, 1, text)
	pipe.Expire(ctx, hotSearchKey, hotSearchTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		middleware.WarnLogger("hot search record failed", zap.Error(err))
	}
}

func (s *ListingService) cachedSearch(ctx context.Context, key string) ([]models.Listing, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.WarnLogger("search cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var rows []models.Listing
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

func (s *ListingService) storeSearch(ctx context.Context, key string, rows []models.Listing) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, searchCacheTTL).Err(); err != nil {
		middleware.WarnLogger("search cache write failed", zap.Error(err))
	}
}

// clearSearchCache 在售记录变化后清除搜索缓存
func (s *ListingService) clearSearchCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, searchCachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		middleware.WarnLogger("search cache scan failed", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		s.cache.Del(ctx, keys...)
	}
}

// ==================== 出售流程 ====================

// SellCommand 出售请求
type SellCommand struct {
	SellerID int64
	Username string
	ISBN     string
	Price    string
}

// SellResult 出售结果
type SellResult struct {
	Signal     Signal          `json:"signal"` // LISTED 或 UNRESOLVABLE
	Resolution Resolution      `json:"resolution"`
	Listing    *models.Listing `json:"listing,omitempty"`
}

// SellService 串联解析与发布
type SellService struct {
	resolver *Resolver
	listings *ListingService
}

// NewSellService 创建出售服务
func NewSellService(resolver *Resolver, listings *ListingService) *SellService {
	return &SellService{resolver: resolver, listings: listings}
}

// Sell 校验输入、解析ISBN并发布
// 解析在加锁之前完成，外部目录请求期间不持有写锁
func (s *SellService) Sell(ctx context.Context, cmd SellCommand) (*SellResult, error) {
	if !utils.ValidateUsername(cmd.Username) {
		return nil, ErrUsernameRequired
	}
	if !utils.IsISBNShape(cmd.ISBN) {
		return nil, ErrInvalidIdentifier
	}
	if _, _, err := utils.NormalizePrice(cmd.Price); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, cmd.ISBN)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cmd.ISBN, err)
	}
	if !res.Found() {
		return &SellResult{Signal: SignalUnresolvable, Resolution: res}, nil
	}

	listing, err := s.listings.ListBook(ctx, res.Book, res.IsNew(), Seller{ID: cmd.SellerID, Username: cmd.Username}, cmd.Price)
	if err != nil {
		return nil, err
	}

	return &SellResult{Signal: SignalListed, Resolution: res, Listing: &listing}, nil
}
