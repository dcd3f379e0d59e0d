package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware())

	api := r.Group("/api/v1")
	{
		payment := api.Group("/payment")
		{
			payment.POST("/confirmed", h.PaymentConfirmed)
		}

		wallet := api.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.POST("/withdraw", h.Withdraw)
			wallet.POST("/withdraw/complete", h.CompleteWithdrawal)
			wallet.POST("/provision", h.ProvisionWallet)
		}

		commission := api.Group("/commission")
		{
			commission.GET("/stats", h.CommissionStats)
			commission.GET("/list", h.ListCommissions)
			commission.GET("/failures", h.CommissionFailures)
			commission.POST("/retry", h.RetryCommission)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
