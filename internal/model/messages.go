package model

// CommissionJob is the payload of the commission_job topic. It mirrors the payment
// confirmation event one-for-one.
type CommissionJob struct {
	OrderID      int64  `json:"order_id"`
	OrderAmount  int64  `json:"order_amount"`
	SourceUserID int64  `json:"source_user_id"`
	ReferrerID   *int64 `json:"referrer_id"`
}

// PayoutDestination describes where a withdrawal is paid out.
type PayoutDestination struct {
	BankName      string `json:"bank_name"`
	BankAccount   string `json:"bank_account"`
	AccountHolder string `json:"account_holder,omitempty"`
}

// PayoutRequest is emitted on the payout_request topic for the settlement service.
type PayoutRequest struct {
	WalletTransactionID int64             `json:"wallet_transaction_id"`
	TransactionNo       string            `json:"transaction_no"`
	UserID              int64             `json:"user_id"`
	Amount              int64             `json:"amount"`
	Destination         PayoutDestination `json:"destination"`
	RequestedAt         string            `json:"requested_at"`
}
