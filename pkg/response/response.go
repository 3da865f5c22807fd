package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 账本 / 代币相关业务错误码
const (
	CodeAccountNotFound     = 1001
	CodeBalanceNotEnough    = 1002
	CodeAllowanceNotEnough  = 1003
	CodeInvalidAddress      = 1004
	CodeForbiddenRecipient  = 1005
	CodeTransfersDisabled   = 1006
	CodeSaleAlreadyBound    = 1007
)

// 销售相关业务错误码
const (
	CodeSalePaused          = 1101
	CodeWrongStage          = 1102
	CodeOutsideSaleWindow   = 1103
	CodeBelowMinContrib     = 1104
	CodeHardCapExceeded     = 1105
	CodeParticipantCapHit   = 1106
	CodeNotWhitelisted      = 1107
	CodePurchaseFailed      = 1108
	CodeRefundFailed        = 1109
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
