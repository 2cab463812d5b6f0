package controllers

import (
	"errors"

	"bookmarket_go/middleware"
	"bookmarket_go/services"
	"bookmarket_go/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// codeForSignal 信号对应的业务状态码
func codeForSignal(signal services.Signal) int {
	switch signal {
	case services.SignalInvalidIdentifier, services.SignalInvalidPrice,
		services.SignalUsernameRequired, services.SignalIncompleteRequest:
		return utils.CodeValidationError
	case services.SignalAlreadyPresent, services.SignalDuplicateRequest, services.SignalNotPending:
		return utils.CodeConflict
	case services.SignalNotOwner:
		return utils.CodeForbidden
	case services.SignalNotFound, services.SignalUnresolvable:
		return utils.CodeNotFound
	case services.SignalDBError:
		return utils.CodeInternalServerError
	default:
		return utils.CodeSuccess
	}
}

// respondSignal 按信号返回
func respondSignal(c *gin.Context, signal services.Signal, data interface{}) {
	utils.SignalResponse(c, codeForSignal(signal), string(signal), "", data)
}

// respondError 把业务错误转换为信号响应，存储错误不向外暴露细节
func respondError(c *gin.Context, err error) {
	signal := services.SignalFor(err)
	message := err.Error()
	if signal == services.SignalDBError {
		middleware.ErrorLogger("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		message = ""
	}
	utils.SignalResponse(c, codeForSignal(signal), string(signal), message, nil)
}

// respondBindError 请求体校验失败，能识别的规则映射为对应信号
func respondBindError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	if !errors.As(err, &ve) {
		utils.Error(c, utils.CodeError, "invalid request body")
		return
	}

	var signal services.Signal
	switch {
	case ve.HasTag("isbn"):
		signal = services.SignalInvalidIdentifier
	case ve.HasTag("price"):
		signal = services.SignalInvalidPrice
	case ve.HasTag("username"):
		signal = services.SignalUsernameRequired
	}
	utils.SignalResponse(c, utils.CodeValidationError, string(signal), "", ve.Errors)
}
