package services

import (
	"context"

	"bookmarket_go/middleware"
	"bookmarket_go/models"
	"bookmarket_go/store"
	"bookmarket_go/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CatalogLookup 外部目录查询，任何失败都按未找到处理
type CatalogLookup interface {
	Lookup(ctx context.Context, isbn string) (models.Book, bool)
}

// Resolution 解析结果
type Resolution struct {
	Signal Signal      `json:"signal"` // FOUND_LOCAL / FOUND_EXTERNAL / UNRESOLVABLE
	Book   models.Book `json:"book"`
}

// Found 是否解析到书籍
func (r Resolution) Found() bool {
	return r.Signal == SignalFoundLocal || r.Signal == SignalFoundExternal
}

// IsNew 书籍来自外部目录，尚未写入本地登记表
func (r Resolution) IsNew() bool {
	return r.Signal == SignalFoundExternal
}

// Resolver 依次尝试本地登记表、外部目录，最后交给人工申请流程
type Resolver struct {
	gw      *store.Gateway
	catalog CatalogLookup
}

// NewResolver 创建解析器
func NewResolver(gw *store.Gateway, catalog CatalogLookup) *Resolver {
	return &Resolver{gw: gw, catalog: catalog}
}

// Resolve 解析ISBN，本身不写存储
// 本地命中优先于外部目录；校验位不合法的ISBN不会访问外部目录
func (r *Resolver) Resolve(ctx context.Context, isbn string) (Resolution, error) {
	book, found, err := findBook(ctx, r.gw, isbn)
	if err != nil {
		return Resolution{}, err
	}
	if found {
		return Resolution{Signal: SignalFoundLocal, Book: book}, nil
	}

	if !utils.ValidISBN(isbn) {
		middleware.DebugLogger("isbn failed checksum, skipping catalog", zap.String("isbn", isbn))
		return Resolution{Signal: SignalUnresolvable, Book: models.Book{ISBN: isbn}}, nil
	}

	if book, ok := r.catalog.Lookup(ctx, isbn); ok {
		book.ISBN = isbn
		if book.Source == "" {
			book.Source = models.BookSourceCatalog
		}
		return Resolution{Signal: SignalFoundExternal, Book: book}, nil
	}

	return Resolution{Signal: SignalUnresolvable, Book: models.Book{ISBN: isbn}}, nil
}

// findBook 按ISBN查询本地登记表，恰好一行才算命中
func findBook(ctx context.Context, gw *store.Gateway, isbn string) (models.Book, bool, error) {
	var books []models.Book
	_, err := gw.Execute(ctx, store.Select{
		Dest: &books,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			return db.Where("isbn = ?", isbn).Limit(2)
		}},
	})
	if err != nil {
		return models.Book{}, false, err
	}
	if len(books) != 1 {
		return models.Book{}, false, nil
	}
	return books[0], true, nil
}
