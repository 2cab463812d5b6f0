package models

import (
	"time"

	"gorm.io/gorm"
)

// RequestStatus 人工录入申请状态
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestRejected  RequestStatus = "rejected"
)

// BookRequest 人工录入申请模型
// 同一ISBN可以有多条申请（每个申请人一条）
type BookRequest struct {
	ID        string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    int64         `gorm:"index;not null;comment:申请人聊天用户ID" json:"user_id"`
	ChatID    int64         `gorm:"not null;comment:通知目标" json:"chat_id"`
	Username  string        `gorm:"type:varchar(64);not null" json:"username"`
	ISBN      string        `gorm:"type:varchar(13);index;not null" json:"isbn"`
	Price     float64       `gorm:"type:decimal(10,2);not null" json:"price"`
	Title     string        `gorm:"type:varchar(255);not null" json:"title"`
	Authors   string        `gorm:"type:varchar(255)" json:"authors"`
	Status    RequestStatus `gorm:"type:varchar(20);index;default:pending;comment:pending,fulfilled,rejected" json:"status"`
	Cascaded  bool          `gorm:"default:false;comment:是否因级联而完成" json:"cascaded"`
	ListingID *uint         `json:"listing_id,omitempty"`
	DecidedBy *int64        `json:"decided_by,omitempty"`
	DecidedAt *time.Time    `json:"decided_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TableName 指定表名
func (BookRequest) TableName() string {
	return "book_requests"
}

// BeforeCreate 创建前钩子
func (r *BookRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	return nil
}

// IsPending 是否仍待审核
func (r *BookRequest) IsPending() bool {
	return r.Status == RequestPending
}
