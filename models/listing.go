package models

import (
	"fmt"
	"time"
)

// Listing 在售发布模型
type Listing struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ISBN      string    `gorm:"type:varchar(13);index;not null" json:"isbn"`
	SellerID  int64     `gorm:"index;not null;comment:聊天用户ID" json:"seller_id"`
	Seller    string    `gorm:"type:varchar(64);not null;comment:公开用户名" json:"seller"`
	Price     float64   `gorm:"type:decimal(10,2);not null" json:"price"`
	CreatedAt time.Time `json:"created_at"`

	// 关联关系
	Book *Book `gorm:"foreignKey:ISBN;references:ISBN" json:"book,omitempty"`
}

// TableName 指定表名
func (Listing) TableName() string {
	return "listings"
}

// PriceText 返回两位小数的价格文本
func (l *Listing) PriceText() string {
	return fmt.Sprintf("%.2f", l.Price)
}

// RowID 返回自增行ID
func (l *Listing) RowID() int64 {
	return int64(l.ID)
}
