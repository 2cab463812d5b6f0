package routes

import (
	"bookmarket_go/config"
	"bookmarket_go/controllers"
	"bookmarket_go/middleware"
	"bookmarket_go/websocket"

	"github.com/gin-gonic/gin"
)

// Handlers 路由依赖
type Handlers struct {
	JWT      *config.JWTService
	Auth     *controllers.AuthController
	Market   *controllers.MarketController
	Requests *controllers.RequestController
	Hub      *websocket.Hub
}

// SetupRoutes 设置路由
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// 应用全局中间件
	r.Use(middleware.CORS(middleware.CORSConfigFromEnv()))
	r.Use(middleware.Logger())

	auth := middleware.AuthMiddleware(h.JWT)

	api := r.Group("/api")
	{
		// ====== 认证路由 (机器人密钥) ======
		api.POST("/auth/token", h.Auth.IssueToken)

		// ====== 出售与解析 ======
		api.POST("/sell", auth, h.Market.Sell)
		api.GET("/books/:isbn/resolve", auth, h.Market.Resolve)

		// ====== 在售记录 ======
		listings := api.Group("/listings", auth)
		{
			listings.GET("/mine", h.Market.MyListings)
			listings.GET("/search", h.Market.Search)
			listings.GET("/search/hot", h.Market.HotQueries)
			listings.DELETE("/:id", h.Market.RemoveListing)
		}

		// ====== 人工录入申请 ======
		api.POST("/requests", auth, h.Requests.Submit)

		admin := api.Group("/admin", auth, middleware.RequireAdmin())
		{
			admin.GET("/requests", h.Requests.Pending)
			admin.POST("/requests/:id/approve", h.Requests.Approve)
			admin.POST("/requests/:id/decline", h.Requests.Decline)
		}
	}

	// ====== WebSocket路由 ======
	if h.Hub != nil {
		r.GET("/ws", auth, h.Hub.HandleConnection)
	}
}
