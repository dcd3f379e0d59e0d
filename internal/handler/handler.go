package handler

import (
	"errors"
	"strconv"

	"commissionledger/internal/service"
	"commissionledger/pkg/logger"
	"commissionledger/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler bundles the services behind the HTTP API.
type Handler struct {
	walletService     *service.WalletService
	commissionService *service.CommissionService
	withdrawService   *service.WithdrawService
	paymentService    *service.PaymentService
}

func NewHandler(wallets *service.WalletService, commissions *service.CommissionService, withdraws *service.WithdrawService, payments *service.PaymentService) *Handler {
	return &Handler{
		walletService:     wallets,
		commissionService: commissions,
		withdrawService:   withdraws,
		paymentService:    payments,
	}
}

// ============================================================
// payment
// ============================================================

// PaymentConfirmed records a successful payment and queues its commission job.
// POST /api/v1/payment/confirmed
func (h *Handler) PaymentConfirmed(c *gin.Context) {
	var req service.PaymentConfirmedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.paymentService.ConfirmPayment(c.Request.Context(), req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// wallet
// ============================================================

// GetWallet GET /api/v1/wallet?user_id=xxx
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}

	wallet, err := h.walletService.GetWallet(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":         wallet.UserID,
		"balance":         wallet.Balance,
		"pending_balance": wallet.PendingBalance,
		"total_earned":    wallet.TotalEarned,
		"total_withdrawn": wallet.TotalWithdrawn,
	})
}

// ListTransactions GET /api/v1/wallet/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	result, err := h.walletService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// Withdraw POST /api/v1/wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req service.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.withdrawService.Withdraw(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

type CompleteWithdrawalRequest struct {
	TransactionNo string `json:"transaction_no" binding:"required"`
}

// CompleteWithdrawal is the payout settlement callback.
// POST /api/v1/wallet/withdraw/complete
func (h *Handler) CompleteWithdrawal(c *gin.Context) {
	var req CompleteWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	trans, err := h.walletService.CompleteWithdrawal(c.Request.Context(), req.TransactionNo)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, trans)
}

type ProvisionWalletRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// ProvisionWallet POST /api/v1/wallet/provision
func (h *Handler) ProvisionWallet(c *gin.Context) {
	var req ProvisionWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	wallet, created, err := h.walletService.Provision(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"wallet":  wallet,
		"created": created,
	})
}

// ============================================================
// commission
// ============================================================

// CommissionStats GET /api/v1/commission/stats?affiliate_id=xxx
func (h *Handler) CommissionStats(c *gin.Context) {
	affiliateID, ok := queryID(c, "affiliate_id")
	if !ok {
		return
	}

	stats, err := h.commissionService.Stats(c.Request.Context(), affiliateID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, stats)
}

// ListCommissions GET /api/v1/commission/list?affiliate_id=xxx&page=1&page_size=20
func (h *Handler) ListCommissions(c *gin.Context) {
	affiliateID, ok := queryID(c, "affiliate_id")
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	result, err := h.commissionService.List(c.Request.Context(), affiliateID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// RetryCommission releases a parked order and queues its commission job again.
// POST /api/v1/commission/retry
func (h *Handler) RetryCommission(c *gin.Context) {
	var req service.PaymentConfirmedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.paymentService.RetryFailed(c.Request.Context(), req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// CommissionFailures GET /api/v1/commission/failures?limit=100
func (h *Handler) CommissionFailures(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	report, err := h.paymentService.Failures(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, report)
}

func queryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" is required and must be a positive integer")
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// writeError maps the service error taxonomy onto response codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBelowMinimum):
		response.BusinessError(c, response.CodeBelowMinWithdrawal, err.Error())
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrWalletNotFound):
		response.BusinessError(c, response.CodeWalletNotFound, "wallet not found")
	case errors.Is(err, service.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, "order not found")
	case errors.Is(err, service.ErrTransactionNotFound):
		response.BusinessError(c, response.CodeTransactionNotFound, "transaction not found")
	case errors.Is(err, service.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeInsufficientFunds, "insufficient balance")
	case errors.Is(err, service.ErrTransient):
		response.BusinessError(c, response.CodeSystemBusy, "system busy, please retry")
	case errors.Is(err, service.ErrInvariantViolation):
		logger.L().Error("ledger invariant violated", zap.String("path", c.FullPath()), zap.Error(err))
		response.BusinessError(c, response.CodeInvariantViolation, "ledger inconsistency detected")
	default:
		logger.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.ServerError(c, "internal error")
	}
}
