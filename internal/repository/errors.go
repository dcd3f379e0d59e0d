package repository

import "errors"

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionNotFound = errors.New("wallet transaction not found")
	ErrBalanceNotEnough    = errors.New("balance not enough")
	ErrOptimisticLock      = errors.New("optimistic lock conflict")
	ErrAlreadyProcessed    = errors.New("order commission already processed")
	ErrAlreadyCompleted    = errors.New("wallet transaction already completed")
	ErrNotFailed           = errors.New("order commission is not marked failed")
)

// Page normalises 1-based pagination input.
func Page(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
