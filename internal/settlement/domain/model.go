package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Reason explains a settlement eligibility decision.
type Reason string

const (
	ReasonEligible            Reason = "eligible"
	ReasonNotCompleted        Reason = "not_completed"
	ReasonAlreadyPaidOut      Reason = "already_paid_out"
	ReasonWithinWaitingPeriod Reason = "within_waiting_period"
	ReasonBlockedByRefund     Reason = "blocked_by_refund"
	ReasonUnresolvableCourse  Reason = "unresolvable_course"
	ReasonEarningExists       Reason = "earning_exists"
	// ReasonLostRace marks a payment settled by a concurrent run between checks.
	ReasonLostRace Reason = "lost_race"
)

type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason"`
}

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

type Outcome string

const (
	OutcomeSettled Outcome = "settled"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result is the outcome of settling one payment.
type Result struct {
	PaymentID snowflake.ID
	Outcome   Outcome
	Reason    Reason
	Amount    decimal.Decimal
	Err       error
}

type PaymentFailure struct {
	PaymentID snowflake.ID `json:"payment_id"`
	Error     string       `json:"error"`
}

// RunReport aggregates one settlement batch.
type RunReport struct {
	Scanned     int              `json:"scanned"`
	Settled     int              `json:"settled"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	SkipReasons map[Reason]int   `json:"skip_reasons"`
	Failures    []PaymentFailure `json:"failures,omitempty"`
}

func NewRunReport() *RunReport {
	return &RunReport{
		TotalAmount: decimal.Zero,
		SkipReasons: map[Reason]int{},
	}
}

// Add folds one payment result into the report.
func (r *RunReport) Add(res Result) {
	switch res.Outcome {
	case OutcomeSettled:
		r.Settled++
		r.TotalAmount = r.TotalAmount.Add(res.Amount)
	case OutcomeSkipped:
		r.Skipped++
		r.SkipReasons[res.Reason]++
	case OutcomeFailed:
		r.Failed++
		msg := ""
		if res.Err != nil {
			msg = res.Err.Error()
		}
		r.Failures = append(r.Failures, PaymentFailure{PaymentID: res.PaymentID, Error: msg})
	}
}

// EligibilitySummary counts scanned candidates by decision reason. Payments
// already paid out are counted separately under already_paid_out, since the
// candidate scan never returns them. Truncated is set when the page budget
// ran out before the candidate window was exhausted.
type EligibilitySummary struct {
	Scanned   int            `json:"scanned"`
	Eligible  int            `json:"eligible"`
	Reasons   map[Reason]int `json:"reasons"`
	Truncated bool           `json:"truncated"`
}

// ConfigSnapshot is the effective settlement configuration exposed to admins.
type ConfigSnapshot struct {
	WaitingPeriodDays      int             `json:"waiting_period_days"`
	InstructorSharePercent decimal.Decimal `json:"instructor_share_percent"`
	BatchSize              int             `json:"batch_size"`
	SchedulingEnabled      bool            `json:"scheduling_enabled"`
	CommissionPercent      decimal.Decimal `json:"commission_percent"`
	CommissionEnabled      bool            `json:"commission_enabled"`
	OversampleFactor       int             `json:"oversample_factor"`
	MaxScanPages           int             `json:"max_scan_pages"`
	SettlementInterval     string          `json:"settlement_interval"`
	ReportInterval         string          `json:"report_interval"`
	MaintenanceInterval    string          `json:"maintenance_interval"`
}
