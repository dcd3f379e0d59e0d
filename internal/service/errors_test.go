package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"commissionledger/internal/repository"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", validationf("bad"), false},
		{"below minimum", ErrBelowMinimum, false},
		{"wallet missing", fmt.Errorf("lock: %w", repository.ErrWalletNotFound), false},
		{"order missing", ErrOrderNotFound, false},
		{"insufficient funds", ErrInsufficientFunds, false},
		{"invariant", ErrInvariantViolation, false},
		{"tx required", ErrTxRequired, false},
		{"transient", fmt.Errorf("%w: lock busy", ErrTransient), true},
		{"optimistic lock", repository.ErrOptimisticLock, true},
		{"deadline", context.DeadlineExceeded, true},
		{"driver error", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
