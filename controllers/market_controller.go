package controllers

import (
	"strconv"

	"bookmarket_go/middleware"
	"bookmarket_go/services"
	"bookmarket_go/utils"

	"github.com/gin-gonic/gin"
)

// MarketController 出售、在售记录与搜索
type MarketController struct {
	sell     *services.SellService
	listings *services.ListingService
	resolver *services.Resolver
}

// NewMarketController 创建市场控制器实例
func NewMarketController(sell *services.SellService, listings *services.ListingService, resolver *services.Resolver) *MarketController {
	return &MarketController{sell: sell, listings: listings, resolver: resolver}
}

// SellRequest 出售请求结构
type SellRequest struct {
	ISBN  string `json:"isbn" binding:"required,isbn"`
	Price string `json:"price" binding:"required,price"`
}

// Sell 出售一本书
// @Summary 出售
// @Description 解析ISBN并创建在售记录，无法解析时返回 UNRESOLVABLE
// @Tags market
// @Accept json
// @Produce json
// @Param body body SellRequest true "出售信息"
// @Router /api/sell [post]
func (mc *MarketController) Sell(c *gin.Context) {
	var req SellRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	claims := middleware.CurrentClaims(c)
	out, err := mc.sell.Sell(c.Request.Context(), services.SellCommand{
		SellerID: claims.UserID,
		Username: claims.Username,
		ISBN:     req.ISBN,
		Price:    req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondSignal(c, out.Signal, out)
}

// Resolve 只解析ISBN，不写入
// @Router /api/books/{isbn}/resolve [get]
func (mc *MarketController) Resolve(c *gin.Context) {
	isbn := c.Param("isbn")
	if !utils.IsISBNShape(isbn) {
		respondError(c, services.ErrInvalidIdentifier)
		return
	}

	res, err := mc.resolver.Resolve(c.Request.Context(), isbn)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSignal(c, res.Signal, res)
}

// MyListings 当前用户的在售记录
// @Router /api/listings/mine [get]
func (mc *MarketController) MyListings(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	rows, err := mc.listings.MyListings(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, rows)
}

// RemoveListing 删除自己的在售记录
// @Router /api/listings/{id} [delete]
func (mc *MarketController) RemoveListing(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, utils.CodeValidationError, "invalid listing id")
		return
	}

	claims := middleware.CurrentClaims(c)
	if err := mc.listings.RemoveListing(c.Request.Context(), claims.UserID, uint(id)); err != nil {
		respondError(c, err)
		return
	}
	respondSignal(c, services.SignalDeleted, gin.H{"id": id})
}

// SearchRequest 搜索参数
type SearchRequest struct {
	Query string `form:"q" binding:"required,min=2,max=100"`
}

// Search 搜索在售记录
// @Router /api/listings/search [get]
func (mc *MarketController) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.ErrorWithData(c, utils.CodeValidationError, "", utils.FormatValidationError(err))
		return
	}

	rows, err := mc.listings.Search(c.Request.Context(), req.Query)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, rows)
}

// HotQueries 热门搜索词
// @Router /api/listings/search/hot [get]
func (mc *MarketController) HotQueries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	keywords, err := mc.listings.HotQueries(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, keywords)
}
