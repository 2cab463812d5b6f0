package utils

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`             // 业务状态码
	Message string      `json:"message"`          // 响应消息
	Signal  string      `json:"signal,omitempty"` // 供聊天层选择提示文案的信号
	Data    interface{} `json:"data,omitempty"`   // 响应数据
	Error   string      `json:"error,omitempty"`  // 错误信息
}

// 业务状态码常量
const (
	CodeSuccess             = 20000 // 成功
	CodeError               = 40000 // 错误
	CodeUnauthorized        = 40100 // 未授权
	CodeForbidden           = 40300 // 禁止访问
	CodeNotFound            = 40400 // 资源不存在
	CodeConflict            = 40900 // 状态冲突
	CodeValidationError     = 42200 // 验证错误
	CodeTooManyRequests     = 42900 // 请求过于频繁
	CodeInternalServerError = 50000 // 内部错误
)

// 业务状态码对应的消息
var codeMessages = map[int]string{
	CodeSuccess:             "操作成功",
	CodeError:               "操作失败",
	CodeUnauthorized:        "未授权，请重新登录",
	CodeForbidden:           "禁止访问",
	CodeNotFound:            "资源不存在",
	CodeConflict:            "状态冲突",
	CodeValidationError:     "参数验证失败",
	CodeTooManyRequests:     "请求过于频繁",
	CodeInternalServerError: "服务器内部错误",
}

// GetCodeMessage 获取状态码对应的消息
func GetCodeMessage(code int) string {
	if msg, exists := codeMessages[code]; exists {
		return msg
	}
	return "未知错误"
}

// HTTPStatus 业务状态码对应的HTTP状态码
func HTTPStatus(code int) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidationError:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeInternalServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: GetCodeMessage(CodeSuccess),
		Data:    data,
	})
}

// SignalResponse 携带信号的响应，HTTP状态码由业务状态码决定
func SignalResponse(c *gin.Context, code int, signal string, message string, data interface{}) {
	if message == "" {
		message = GetCodeMessage(code)
	}
	c.Set("signal", signal)
	c.JSON(HTTPStatus(code), Response{
		Code:    code,
		Message: message,
		Signal:  signal,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = GetCodeMessage(code)
	}
	c.JSON(HTTPStatus(code), Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData 带数据的错误响应
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = GetCodeMessage(code)
	}
	c.JSON(HTTPStatus(code), Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, CodeUnauthorized, message)
}

// InternalError 内部错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, CodeInternalServerError, message)
}

// APIRateLimit API限流（使用Redis固定窗口计数）
// client 为 nil 或 Redis 出错时不限流
func APIRateLimit(ctx context.Context, client *redis.Client, key string, limit int, window time.Duration) bool {
	if client == nil {
		return true
	}

	redisKey := fmt.Sprintf("ratelimit:api:%s", key)

	// 使用Redis的INCR和EXPIRE实现限流
	count, err := client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true
	}

	// 如果是第一次请求，设置过期时间
	if count == 1 {
		client.Expire(ctx, redisKey, window)
	}

	return count <= int64(limit)
}
