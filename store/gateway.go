// Package store 执行对书籍登记表、在售表与申请表的参数化读写
package store

import (
	"context"
	"errors"
	"fmt"

	"bookmarket_go/middleware"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDatabase 存储层错误，调用方应视为操作未发生
var ErrDatabase = errors.New("database error")

// Scope 查询条件构造器
type Scope = func(*gorm.DB) *gorm.DB

// Op 存储操作，只能是本包定义的 Insert、Delete、Select、Update 之一
type Op interface {
	opName() string
}

// Insert 插入一行，Value 必须是模型指针，主键会回填到 Value
type Insert struct {
	Value any
	// IgnoreConflict 主键/唯一键冲突时不报错也不写入（事务性 upsert）
	IgnoreConflict bool
}

// Delete 按条件删除，Model 指定表
type Delete struct {
	Model any
	Where string
	Args  []any
}

// Select 查询结果写入 Dest（切片指针或模型指针）
type Select struct {
	Dest   any
	Scopes []Scope
}

// Update 按条件更新列，仅用于申请状态流转
type Update struct {
	Model  any
	Where  string
	Args   []any
	Values map[string]any
}

func (Insert) opName() string { return "insert" }
func (Delete) opName() string { return "delete" }
func (Select) opName() string { return "select" }
func (Update) opName() string { return "update" }

// Result 操作结果
type Result struct {
	// RowID 整型主键模型插入后的行ID
	RowID int64
	// Affected 受影响（或查询到）的行数
	Affected int64
}

// Gateway 存储网关
type Gateway struct {
	db *gorm.DB
}

// NewGateway 创建存储网关
func NewGateway(db *gorm.DB) *Gateway {
	return &Gateway{db: db}
}

// Execute 执行一次存储操作
// 写操作各自在独立事务中提交，读操作不开启事务
func (g *Gateway) Execute(ctx context.Context, op Op) (Result, error) {
	db := g.db.WithContext(ctx)

	var (
		res Result
		err error
	)

	switch o := op.(type) {
	case Insert:
		err = db.Transaction(func(tx *gorm.DB) error {
			if o.IgnoreConflict {
				tx = tx.Clauses(clause.OnConflict{DoNothing: true})
			}
			r := tx.Create(o.Value)
			res.Affected = r.RowsAffected
			return r.Error
		})
		if err == nil {
			res.RowID = rowID(o.Value)
		}

	case Delete:
		err = db.Transaction(func(tx *gorm.DB) error {
			r := tx.Where(o.Where, o.Args...).Delete(o.Model)
			res.Affected = r.RowsAffected
			return r.Error
		})

	case Update:
		err = db.Transaction(func(tx *gorm.DB) error {
			r := tx.Model(o.Model).Where(o.Where, o.Args...).Updates(o.Values)
			res.Affected = r.RowsAffected
			return r.Error
		})

	case Select:
		r := db.Scopes(o.Scopes...).Find(o.Dest)
		res.Affected = r.RowsAffected
		err = r.Error

	default:
		err = fmt.Errorf("unsupported store operation %T", op)
	}

	if err != nil {
		middleware.ErrorLogger("store operation failed",
			zap.String("op", opName(op)),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("%w: %s: %v", ErrDatabase, opName(op), err)
	}

	return res, nil
}

// DB 暴露底层连接，仅供健康检查与测试使用
func (g *Gateway) DB() *gorm.DB {
	return g.db
}

func opName(op Op) string {
	if op == nil {
		return "nil"
	}
	return op.opName()
}

// rowIdentifier 拥有整型自增主键的模型
type rowIdentifier interface {
	RowID() int64
}

func rowID(value any) int64 {
	if r, ok := value.(rowIdentifier); ok {
		return r.RowID()
	}
	return 0
}
