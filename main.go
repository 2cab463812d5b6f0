package main

import (
	"context"
	"log"
	"os"

	"bookmarket_go/catalog"
	"bookmarket_go/config"
	"bookmarket_go/controllers"
	"bookmarket_go/locker"
	"bookmarket_go/middleware"
	"bookmarket_go/routes"
	"bookmarket_go/services"
	"bookmarket_go/store"
	"bookmarket_go/websocket"

	"github.com/joho/godotenv"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	env := os.Getenv("GIN_MODE")
	if env == "" {
		env = "debug"
		os.Setenv("GIN_MODE", env)
	}

	// 初始化日志系统
	if err := middleware.InitLogger(env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer middleware.FlushLogger()

	// 初始化数据库
	if err := config.InitDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer config.CloseDatabase()

	// 初始化Redis（可选）
	serverConfig := config.GetServerConfig()
	if serverConfig.RedisEnabled {
		if err := config.InitializeRedis(); err != nil {
			log.Printf("⚠️  Redis unavailable, continuing without it: %v", err)
		}
	}
	defer config.CloseRedis()
	rdb := config.GetRedisClient()

	market := config.GetMarketConfig()

	// 写锁：有Redis时跨实例串行
	var locks locker.Locker = locker.NewMemoryLocker()
	if rdb != nil {
		locks = locker.NewRedisLocker(rdb, "lock:isbn:", market.LockTTL)
	}
	locks = locker.Bounded{Locker: locks, Wait: market.LockWait}

	catalogOpts := []catalog.Option{}
	if rdb != nil {
		catalogOpts = append(catalogOpts, catalog.WithCache(rdb))
	}
	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:           market.CatalogURL,
		Timeout:           market.CatalogTimeout,
		RequestsPerSecond: market.CatalogRPS,
	}, catalogOpts...)

	// 通知：WebSocket + Redis流
	hub := websocket.NewHub(market.AdminIDs, rdb)
	if err := hub.Start(context.Background()); err != nil {
		log.Fatalf("Failed to initialize WebSocket hub: %v", err)
	}
	defer hub.Close()
	notifier := services.MultiNotifier{hub, services.NewStreamNotifier(rdb, "")}

	gw := store.NewGateway(config.DB)
	resolver := services.NewResolver(gw, catalogClient)
	listings := services.NewListingService(gw, locks, rdb)
	requests := services.NewRequestService(gw, listings, locks, notifier)

	jwtService := config.GetJWTService()
	jwtConfig := config.GetJWTConfig()

	r := config.SetupRouter()
	routes.SetupRoutes(r, &routes.Handlers{
		JWT:      jwtService,
		Auth:     controllers.NewAuthController(jwtService, market.BotAPIKeyHash, market.AdminIDs, jwtConfig.ExpirationTime),
		Market:   controllers.NewMarketController(services.NewSellService(resolver, listings), listings, resolver),
		Requests: controllers.NewRequestController(requests, rdb, market.RequestLimit, market.RequestWindow),
		Hub:      hub,
	})

	if err := config.StartServer(r); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
