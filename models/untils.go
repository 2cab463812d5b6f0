package models

import (
	"github.com/google/uuid"
)

// generateUUID 生成UUID
func generateUUID() string {
	return uuid.New().String()
}

// AllModels 返回需要自动迁移的模型
func AllModels() []interface{} {
	return []interface{}{&Book{}, &Listing{}, &BookRequest{}}
}
