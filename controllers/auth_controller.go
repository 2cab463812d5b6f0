package controllers

import (
	"time"

	"bookmarket_go/config"
	"bookmarket_go/middleware"
	"bookmarket_go/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthController 为聊天机器人签发用户令牌
type AuthController struct {
	jwtService *config.JWTService
	botKeyHash []byte
	adminIDs   []int64
	tokenTTL   time.Duration
}

// NewAuthController 创建认证控制器实例，botKeyHash 为机器人密钥的 bcrypt 哈希
func NewAuthController(jwtService *config.JWTService, botKeyHash string, adminIDs []int64, tokenTTL time.Duration) *AuthController {
	return &AuthController{
		jwtService: jwtService,
		botKeyHash: []byte(botKeyHash),
		adminIDs:   adminIDs,
		tokenTTL:   tokenTTL,
	}
}

// TokenRequest 令牌请求结构
type TokenRequest struct {
	APIKey   string `json:"api_key" binding:"required"`
	UserID   int64  `json:"user_id" binding:"required"`
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username" binding:"omitempty,username"`
}

// TokenResponse 令牌响应结构
type TokenResponse struct {
	Token     string   `json:"token"`
	Roles     []string `json:"roles"`
	ExpiresIn int64    `json:"expires_in"`
}

// IssueToken 机器人代表聊天用户换取令牌
// @Summary 签发令牌
// @Tags auth
// @Accept json
// @Produce json
// @Param body body TokenRequest true "机器人密钥与用户信息"
// @Router /api/auth/token [post]
func (ac *AuthController) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	if len(ac.botKeyHash) == 0 {
		utils.Unauthorized(c, "bot key not configured")
		return
	}
	if err := bcrypt.CompareHashAndPassword(ac.botKeyHash, []byte(req.APIKey)); err != nil {
		middleware.WarnLogger("bot key rejected", zap.Int64("user_id", req.UserID))
		utils.Unauthorized(c, "invalid bot key")
		return
	}

	chatID := req.ChatID
	if chatID == 0 {
		chatID = req.UserID
	}
	roles := config.RolesFor(req.UserID, ac.adminIDs)

	token, err := ac.jwtService.GenerateToken(req.UserID, chatID, req.Username, roles)
	if err != nil {
		middleware.ErrorLogger("token generation failed", zap.Error(err))
		utils.InternalError(c, "")
		return
	}

	utils.Success(c, TokenResponse{
		Token:     token,
		Roles:     roles,
		ExpiresIn: int64(ac.tokenTTL.Seconds()),
	})
}
