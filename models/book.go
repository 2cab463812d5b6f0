package models

import (
	"time"
)

// 书籍来源
const (
	BookSourceCatalog = "catalog" // 外部馆藏目录
	BookSourceManual  = "manual"  // 管理员审核通过的人工申请
)

// Book 书籍登记模型（以ISBN为唯一键）
type Book struct {
	ISBN      string    `gorm:"type:varchar(13);primaryKey;comment:10位或13位ISBN" json:"isbn"`
	Title     string    `gorm:"type:varchar(255);not null;index" json:"title"`
	Authors   string    `gorm:"type:varchar(255);index" json:"authors"`
	Source    string    `gorm:"type:varchar(20);default:catalog;comment:catalog,manual" json:"source"`
	CreatedAt time.Time `json:"created_at"`

	// 关联关系
	Listings []Listing `gorm:"foreignKey:ISBN;references:ISBN" json:"listings,omitempty"`
}

// TableName 指定表名
func (Book) TableName() string {
	return "books"
}
