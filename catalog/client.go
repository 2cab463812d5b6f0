// Package catalog 查询外部馆藏目录（WebPAC 检索页）获取书名与作者
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookmarket_go/middleware"
	"bookmarket_go/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// NoMatchesMarker 检索无结果时页面中出现的文本
const NoMatchesMarker = "No matches found"

// DefaultBaseURL 默认检索地址
const DefaultBaseURL = "https://catalogo.unict.it/search/i"

const (
	cacheKeyPrefix = "catalog:isbn:"
	cacheTTL       = 24 * time.Hour
	maxBodyBytes   = 2 << 20
)

// Config 目录客户端配置
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// Client 外部目录客户端
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cache     *redis.Client
	inflight  singleflight.Group
}

// Option 客户端可选项
type Option func(*Client)

// WithHTTPClient 替换HTTP客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache 启用Redis缓存（只缓存命中的结果）
func WithCache(client *redis.Client) Option {
	return func(c *Client) { c.cache = client }
}

// NewClient 创建目录客户端
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bookmarket/1.0"
	}

	c := &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchURL 构造检索地址：<base>?SEARCH=<isbn>&sortdropdown=-&searchscope=9
func (c *Client) SearchURL(isbn string) string {
	return c.baseURL + "?SEARCH=" + url.QueryEscape(isbn) + "&sortdropdown=-&searchscope=9"
}

// Lookup 按ISBN查询，未找到与任何失败都返回 false，不做重试
func (c *Client) Lookup(ctx context.Context, isbn string) (models.Book, bool) {
	if book, ok := c.fromCache(ctx, isbn); ok {
		return book, true
	}

	// 同一ISBN的并发查询共享一次请求；共享请求不随单个调用方取消，由 http 超时约束
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(isbn, func() (interface{}, error) {
		return c.fetch(shared, isbn)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		middleware.WarnLogger("catalog lookup abandoned",
			zap.String("isbn", isbn),
			zap.Error(ctx.Err()),
		)
		return models.Book{}, false
	}

	v, err := res.Val, res.Err
	if err != nil {
		middleware.WarnLogger("catalog lookup failed",
			zap.String("isbn", isbn),
			zap.Error(err),
		)
		return models.Book{}, false
	}
	book, _ := v.(*models.Book)
	if book == nil {
		middleware.DebugLogger("catalog has no match", zap.String("isbn", isbn))
		return models.Book{}, false
	}

	c.toCache(ctx, *book)
	return *book, true
}

// fetch 执行一次HTTP请求；返回 nil, nil 表示目录明确无结果
func (c *Client) fetch(ctx context.Context, isbn string) (*models.Book, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SearchURL(isbn), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}

	if strings.Contains(string(body), NoMatchesMarker) {
		return nil, nil
	}

	title, authors, err := ParseRecord(body)
	if err != nil {
		return nil, err
	}

	return &models.Book{
		ISBN:    isbn,
		Title:   title,
		Authors: authors,
		Source:  models.BookSourceCatalog,
	}, nil
}

func (c *Client) fromCache(ctx context.Context, isbn string) (models.Book, bool) {
	if c.cache == nil {
		return models.Book{}, false
	}
	cached, err := c.cache.Get(ctx, cacheKeyPrefix+isbn).Result()
	if err != nil {
		return models.Book{}, false
	}
	var book models.Book
	if json.Unmarshal([]byte(cached), &book) != nil || book.ISBN != isbn {
		return models.Book{}, false
	}
	return book, true
}

func (c *Client) toCache(ctx context.Context, book models.Book) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(book)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKeyPrefix+book.ISBN, data, cacheTTL).Err(); err != nil {
		middleware.DebugLogger("catalog cache write failed", zap.Error(err))
	}
}
