package service

import (
	"context"
	"errors"
	"fmt"

	"fanpoints/internal/game"
	"fanpoints/internal/repository"
)

// 业务错误，handler 根据这些错误映射业务码和 HTTP 状态
var (
	ErrAccountNotFound      = errors.New("账户不存在")
	ErrAccountExists        = errors.New("账户已存在")
	ErrInsufficientPoints   = errors.New("积分不足")
	ErrAlreadyMarked        = errors.New("今日已签到")
	ErrContention           = errors.New("系统繁忙，请稍后重试")
	ErrStoreUnavailable     = errors.New("存储暂不可用")
	ErrInvalidAmount        = errors.New("积分数量必须大于 0")
	ErrUnknownBettingType   = errors.New("不支持的下注类型")
	ErrInvalidPaymentMethod = errors.New("不支持的支付方式")
	ErrInvalidDate          = errors.New("日期参数不合法")
)

var businessErrors = []error{
	ErrAccountNotFound,
	ErrAccountExists,
	ErrInsufficientPoints,
	ErrAlreadyMarked,
	ErrContention,
	ErrStoreUnavailable,
	ErrInvalidAmount,
	ErrUnknownBettingType,
	ErrInvalidPaymentMethod,
	ErrInvalidDate,
}

// translateError 把仓储层和开奖错误转换成业务错误，
// 其余无法识别的存储错误统一包装为 ErrStoreUnavailable
func translateError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrAccountExists):
		return ErrAccountExists
	case errors.Is(err, game.ErrUnknownBettingType):
		return ErrUnknownBettingType
	case errors.Is(err, game.ErrPayoutOverflow):
		return ErrInvalidAmount
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
