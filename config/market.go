package config

import (
	"strconv"
	"time"
)

// MarketConfig 市场业务配置
type MarketConfig struct {
	AdminIDs       []int64       // 可审核申请的聊天用户ID
	BotAPIKeyHash  string        // 机器人密钥的 bcrypt 哈希
	CatalogURL     string        // 外部目录检索地址
	CatalogTimeout time.Duration // 外部目录请求超时
	CatalogRPS     float64       // 外部目录每秒请求数
	LockTTL        time.Duration // Redis 写锁过期时间
	LockWait       time.Duration // 等待写锁的最长时间
	RequestLimit   int           // 每用户申请次数上限
	RequestWindow  time.Duration // 申请限流窗口
}

// GetMarketConfig 获取市场业务配置
func GetMarketConfig() *MarketConfig {
	rps, err := strconv.ParseFloat(GetEnv("CATALOG_RPS", "1"), 64)
	if err != nil || rps <= 0 {
		rps = 1
	}
	return &MarketConfig{
		AdminIDs:       GetEnvInt64List("ADMIN_IDS"),
		BotAPIKeyHash:  GetEnv("BOT_API_KEY_HASH", ""),
		CatalogURL:     GetEnv("CATALOG_BASE_URL", "https://catalogo.unict.it/search/i"),
		CatalogTimeout: GetEnvDuration("CATALOG_TIMEOUT", 10*time.Second),
		CatalogRPS:     rps,
		LockTTL:        GetEnvDuration("LOCK_TTL", 30*time.Second),
		LockWait:       GetEnvDuration("LOCK_WAIT", 15*time.Second),
		RequestLimit:   GetEnvInt("REQUEST_RATE_LIMIT", 10),
		RequestWindow:  GetEnvDuration("REQUEST_RATE_WINDOW", time.Hour),
	}
}
