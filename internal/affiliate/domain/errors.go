package domain

import "errors"

var (
	ErrUsageNotFound       = errors.New("discount_usage_not_found")
	ErrNotReferral         = errors.New("discount_not_referral")
	ErrMissingReferrer     = errors.New("discount_missing_referrer")
	ErrCommissionDisabled  = errors.New("commission_disabled")
	ErrInvalidFinalPrice   = errors.New("invalid_final_price")
	ErrPayoutNotFound      = errors.New("payout_not_found")
	ErrPayoutNotPending    = errors.New("payout_not_pending")
	ErrCancelReasonMissing = errors.New("cancel_reason_required")
	ErrEmptyBulkRequest    = errors.New("bulk_ids_required")
)

var ErrInvalidStatus = errors.New("invalid_payout_status")
