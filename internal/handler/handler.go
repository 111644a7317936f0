package handler

import (
	"strconv"
	"time"

	"fanpoints/internal/service"
	"fanpoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 积分接口处理器
type Handler struct {
	points *service.PointsService
}

func NewHandler(points *service.PointsService) *Handler {
	return &Handler{points: points}
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		response.ParamError(c, "limit 参数错误")
		return 0, false
	}
	return limit, true
}

// ============================================================
// 账户
// ============================================================

// OpenAccount 注册成功后由认证服务调用开户
// POST /api/v1/accounts
func (h *Handler) OpenAccount(c *gin.Context) {
	res, err := h.points.OpenAccount(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// GetBalance GET /api/v1/points/balance
func (h *Handler) GetBalance(c *gin.Context) {
	res, err := h.points.GetBalance(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// ============================================================
// 签到
// ============================================================

// CheckIn 签到，日期由服务端决定
// POST /api/v1/attendance/check-in
func (h *Handler) CheckIn(c *gin.Context) {
	res, err := h.points.CreditAttendance(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// AttendanceMonth 某月已签到的日期，缺省为当月
// GET /api/v1/attendance/month?year=2024&month=5
func (h *Handler) AttendanceMonth(c *gin.Context) {
	today := h.points.Today()
	year, month := today.Year(), int(today.Month())

	if raw := c.Query("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.ParamError(c, "year 参数错误")
			return
		}
		year = v
	}
	if raw := c.Query("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 12 {
			response.ParamError(c, "month 参数错误")
			return
		}
		month = v
	}

	days, err := h.points.AttendanceMonth(c.Request.Context(), userID(c), year, time.Month(month))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"year":  year,
		"month": month,
		"days":  days,
	})
}

// ============================================================
// 下注
// ============================================================

// Odds GET /api/v1/bet/odds
func (h *Handler) Odds(c *gin.Context) {
	response.Success(c, h.points.Odds())
}

type PlaceBetRequest struct {
	Stake       int64  `json:"stake" binding:"required,gt=0,max=1000000000000"`
	BettingType string `json:"betting_type" binding:"required"`
}

// PlaceBet POST /api/v1/bet
func (h *Handler) PlaceBet(c *gin.Context) {
	var req PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	res, err := h.points.PlaceBet(c.Request.Context(), userID(c), req.Stake, req.BettingType)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// BetHistory GET /api/v1/bet/history?limit=20
func (h *Handler) BetHistory(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	tickets, err := h.points.BetHistory(c.Request.Context(), userID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": tickets})
}

// ============================================================
// 捐赠 / 充值
// ============================================================

type DonateRequest struct {
	Points int64  `json:"points" binding:"required,gt=0,max=1000000000000"`
	Target string `json:"target" binding:"max=64"`
}

// Donate POST /api/v1/donate
func (h *Handler) Donate(c *gin.Context) {
	var req DonateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	res, err := h.points.Donate(c.Request.Context(), userID(c), req.Points, req.Target)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

type ChargeRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0,max=1000000000000"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

// Charge 充值（支付渠道回调已在上游完成）
// POST /api/v1/charge
func (h *Handler) Charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	res, err := h.points.ChargePoints(c.Request.Context(), userID(c), req.Amount, req.PaymentMethod)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// ============================================================
// 流水
// ============================================================

// Ledger 最新的流水在前
// GET /api/v1/ledger?limit=20
func (h *Handler) Ledger(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	entries, err := h.points.GetLedger(c.Request.Context(), userID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": entries})
}

// Audit GET /api/v1/ledger/audit
func (h *Handler) Audit(c *gin.Context) {
	report, err := h.points.Audit(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, report)
}
