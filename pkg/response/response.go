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

// 积分业务码
const (
	CodeAccountNotFound      = 1001
	CodeAccountExists        = 1002
	CodeInsufficientPoints   = 1003
	CodeAlreadyMarked        = 1004
	CodeContention           = 1005
	CodeStoreUnavailable     = 1006
	CodeInvalidAmount        = 1007
	CodeUnknownBettingType   = 1008
	CodeInvalidPaymentMethod = 1009
)

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// RequestIDKey 请求ID在 gin.Context 中的 key，由中间件写入
const RequestIDKey = "request_id"

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		RequestID: c.GetString(RequestIDKey),
	})
}

// Error 业务错误，HTTP 状态码与业务码分开
func Error(c *gin.Context, status int, code int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      code,
		Message:   message,
		RequestID: c.GetString(RequestIDKey),
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}
