package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"fanpoints/internal/service"
	"fanpoints/pkg/response"

	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	err    error
	status int
	code   int
}

var errorMappings = []errorMapping{
	{service.ErrAccountNotFound, http.StatusNotFound, response.CodeAccountNotFound},
	{service.ErrAccountExists, http.StatusConflict, response.CodeAccountExists},
	{service.ErrInsufficientPoints, http.StatusUnprocessableEntity, response.CodeInsufficientPoints},
	{service.ErrAlreadyMarked, http.StatusConflict, response.CodeAlreadyMarked},
	{service.ErrContention, http.StatusServiceUnavailable, response.CodeContention},
	{service.ErrStoreUnavailable, http.StatusServiceUnavailable, response.CodeStoreUnavailable},
	{service.ErrInvalidAmount, http.StatusBadRequest, response.CodeInvalidAmount},
	{service.ErrUnknownBettingType, http.StatusBadRequest, response.CodeUnknownBettingType},
	{service.ErrInvalidPaymentMethod, http.StatusBadRequest, response.CodeInvalidPaymentMethod},
	{service.ErrInvalidDate, http.StatusBadRequest, response.CodeParamError},
}

// writeError 把业务错误转换成响应，不向调用方暴露存储层细节
func writeError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.code == response.CodeStoreUnavailable {
				slog.Error("存储不可用", "path", c.FullPath(), "request_id", c.GetString(response.RequestIDKey), "error", err)
			}
			response.Error(c, m.status, m.code, m.err.Error())
			return
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		response.Error(c, http.StatusServiceUnavailable, response.CodeContention, service.ErrContention.Error())
		return
	}

	slog.Error("未知错误", "path", c.FullPath(), "request_id", c.GetString(response.RequestIDKey), "error", err)
	response.ServerError(c, "服务器内部错误")
}
