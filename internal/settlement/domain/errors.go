package domain

import "errors"

var (
	// ErrLostRace is returned inside the settlement transaction when paid_out_at
	// was set concurrently, forcing a rollback.
	ErrLostRace          = errors.New("settlement_lost_race")
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrRefundLoadFailed  = errors.New("refund_load_failed")
	ErrSettlementTrigger = errors.New("settlement_trigger_unavailable")
)
