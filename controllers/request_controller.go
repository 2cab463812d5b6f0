package controllers

import (
	"strconv"
	"time"

	"bookmarket_go/middleware"
	"bookmarket_go/services"
	"bookmarket_go/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RequestController 人工录入申请
type RequestController struct {
	requests    *services.RequestService
	redisClient *redis.Client
	limit       int
	window      time.Duration
}

// NewRequestController 创建申请控制器实例，redisClient 为 nil 时不限流
func NewRequestController(requests *services.RequestService, redisClient *redis.Client, limit int, window time.Duration) *RequestController {
	return &RequestController{
		requests:    requests,
		redisClient: redisClient,
		limit:       limit,
		window:      window,
	}
}

// SubmitRequestBody 申请请求结构
type SubmitRequestBody struct {
	ISBN    string `json:"isbn" binding:"required,isbn"`
	Price   string `json:"price" binding:"required,price"`
	Title   string `json:"title" binding:"required,max=255"`
	Authors string `json:"authors" binding:"max=255"`
	ChatID  int64  `json:"chat_id"`
}

// Submit 提交人工录入申请
// @Summary 提交申请
// @Tags requests
// @Accept json
// @Produce json
// @Param body body SubmitRequestBody true "书籍信息"
// @Router /api/requests [post]
func (rc *RequestController) Submit(c *gin.Context) {
	claims := middleware.CurrentClaims(c)

	key := "requests:" + strconv.FormatInt(claims.UserID, 10)
	if !utils.APIRateLimit(c.Request.Context(), rc.redisClient, key, rc.limit, rc.window) {
		utils.Error(c, utils.CodeTooManyRequests, "")
		return
	}

	var body SubmitRequestBody
	if err := utils.BindAndValidate(c, &body); err != nil {
		respondBindError(c, err)
		return
	}

	chatID := body.ChatID
	if chatID == 0 {
		chatID = claims.ChatID
	}

	req, err := rc.requests.Submit(c.Request.Context(), services.SubmitCommand{
		UserID:   claims.UserID,
		ChatID:   chatID,
		Username: claims.Username,
		ISBN:     body.ISBN,
		Price:    body.Price,
		Title:    utils.LimitStringLength(body.Title, 255),
		Authors:  utils.LimitStringLength(body.Authors, 255),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondSignal(c, services.SignalRequestSubmitted, req)
}

// Pending 待审申请列表
// @Router /api/admin/requests [get]
func (rc *RequestController) Pending(c *gin.Context) {
	isbn := c.Query("isbn")
	if isbn != "" && !utils.IsISBNShape(isbn) {
		respondError(c, services.ErrInvalidIdentifier)
		return
	}

	rows, err := rc.requests.Pending(c.Request.Context(), isbn)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, rows)
}

// Approve 通过申请并级联处理同一ISBN的其他申请
// @Router /api/admin/requests/{id}/approve [post]
func (rc *RequestController) Approve(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	report, err := rc.requests.Approve(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSignal(c, services.SignalRequestFulfilled, report)
}

// Decline 拒绝申请，不影响其他申请
// @Router /api/admin/requests/{id}/decline [post]
func (rc *RequestController) Decline(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	req, err := rc.requests.Decline(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSignal(c, services.SignalRequestRejected, req)
}
