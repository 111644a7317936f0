package handler

import (
	"net/http"

	"fanpoints/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(points *service.PointsService) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(points)

	api := r.Group("/api/v1", AuthMiddleware())
	{
		api.POST("/accounts", h.OpenAccount)
		api.GET("/points/balance", h.GetBalance)

		attendance := api.Group("/attendance")
		{
			attendance.POST("/check-in", h.CheckIn)
			attendance.GET("/month", h.AttendanceMonth)
		}

		bet := api.Group("/bet")
		{
			bet.GET("/odds", h.Odds)
			bet.POST("", h.PlaceBet)
			bet.GET("/history", h.BetHistory)
		}

		api.POST("/donate", h.Donate)
		api.POST("/charge", h.Charge)

		ledger := api.Group("/ledger")
		{
			ledger.GET("", h.Ledger)
			ledger.GET("/audit", h.Audit)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
