package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"bookmarket_go/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// DatabaseConfig 数据库配置结构
type DatabaseConfig struct {
	Driver   string // mysql 或 sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Charset  string
	Path     string // sqlite 文件路径
}

// GetDatabaseConfig 从环境变量获取数据库配置
func GetDatabaseConfig() *DatabaseConfig {
	cfg := &DatabaseConfig{
		Driver:   GetEnv("DB_DRIVER", "sqlite"),
		Host:     GetEnv("DB_HOST", "localhost"),
		Port:     GetEnv("DB_PORT", "3306"),
		User:     GetEnv("DB_USER", "root"),
		Password: GetEnv("DB_PASSWORD", ""),
		DBName:   GetEnv("DB_NAME", "bookmarket"),
		Charset:  GetEnv("DB_CHARSET", "utf8mb4"),
		Path:     GetEnv("DB_PATH", "data/bookmarket.db"),
	}

	log.Printf("📋 Database Config Loaded:\n  Driver: %s\n  Host: %s\n  Port: %s\n  User: %s\n  DBName: %s\n  Password: %s\n  Path: %s\n",
		cfg.Driver, cfg.Host, cfg.Port, cfg.User, cfg.DBName, maskPassword(cfg.Password), cfg.Path)

	return cfg
}

// maskPassword 掩盖密码（只显示前2个字符）
func maskPassword(pwd string) string {
	if len(pwd) == 0 {
		return "(empty)"
	}
	if len(pwd) <= 2 {
		return "***"
	}
	return pwd[:2] + "***"
}

// Dialector 根据配置返回gorm方言
func (c *DatabaseConfig) Dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName, c.Charset)
		return mysql.Open(dsn), nil
	case "sqlite":
		if dir := filepath.Dir(c.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// 忙等待 + WAL，避免并发写入时报 database is locked
		return sqlite.Open(c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
}

// OpenDatabase 打开数据库并自动迁移
func OpenDatabase(cfg *DatabaseConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	dialector, err := cfg.Dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
		// listings.isbn 只是逻辑引用，不建立外键约束
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// InitDatabase 初始化数据库连接
func InitDatabase() error {
	cfg := GetDatabaseConfig()

	// 配置Gorm日志
	logLevel := logger.Silent
	if GetEnv("GIN_MODE", "release") == "debug" {
		logLevel = logger.Info
	}

	db, err := OpenDatabase(cfg, logLevel)
	if err != nil {
		return err
	}
	DB = db

	// 获取底层的sql.DB实例
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// 设置连接池参数
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("✅ Database connected successfully")
	return nil
}

// CloseDatabase 关闭数据库连接
func CloseDatabase() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
