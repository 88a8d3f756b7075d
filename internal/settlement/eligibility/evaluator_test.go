package eligibility

import (
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	"github.com/smallbiznis/payout/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

const waiting = 72 * time.Hour

func completed(age time.Duration) paymentdomain.Payment {
	return paymentdomain.Payment{
		ID:           1,
		Status:       paymentdomain.PaymentStatusCompleted,
		CourseID:     10,
		InstructorID: 20,
		UpdatedAt:    now.Add(-age),
	}
}

func TestEvaluate_WaitingPeriodBoundary(t *testing.T) {
	d := Evaluate(Input{Payment: completed(71 * time.Hour)}, now, waiting)
	assert.False(t, d.Eligible)
	assert.Equal(t, domain.ReasonWithinWaitingPeriod, d.Reason)

	d = Evaluate(Input{Payment: completed(73 * time.Hour)}, now, waiting)
	assert.True(t, d.Eligible)
	assert.Equal(t, domain.ReasonEligible, d.Reason)

	d = Evaluate(Input{Payment: completed(72 * time.Hour)}, now, waiting)
	assert.True(t, d.Eligible, "exactly the waiting period is enough")
}

func TestEvaluate_Refunds(t *testing.T) {
	cases := []struct {
		status  paymentdomain.RefundStatus
		blocked bool
	}{
		{paymentdomain.RefundStatusPending, true},
		{paymentdomain.RefundStatusCompleted, true},
		{paymentdomain.RefundStatusRejected, false},
		{paymentdomain.RefundStatusFailed, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			d := Evaluate(Input{
				Payment: completed(100 * time.Hour),
				Refunds: []paymentdomain.Refund{{ID: 5, PaymentID: 1, Status: tc.status}},
			}, now, waiting)
			assert.Equal(t, !tc.blocked, d.Eligible)
			if tc.blocked {
				assert.Equal(t, domain.ReasonBlockedByRefund, d.Reason)
			}
		})
	}
}

func TestEvaluate_RuleOrder(t *testing.T) {
	paidAt := now.Add(-time.Hour)

	pending := completed(100 * time.Hour)
	pending.Status = paymentdomain.PaymentStatusPending
	pending.PaidOutAt = &paidAt
	assert.Equal(t, domain.ReasonNotCompleted, Evaluate(Input{Payment: pending}, now, waiting).Reason)

	paid := completed(time.Hour)
	paid.PaidOutAt = &paidAt
	assert.Equal(t, domain.ReasonAlreadyPaidOut, Evaluate(Input{Payment: paid}, now, waiting).Reason)

	young := completed(time.Hour)
	young.CourseID = 0
	assert.Equal(t, domain.ReasonWithinWaitingPeriod, Evaluate(Input{Payment: young}, now, waiting).Reason)

	orphan := completed(100 * time.Hour)
	orphan.InstructorID = 0
	assert.Equal(t, domain.ReasonUnresolvableCourse, Evaluate(Input{Payment: orphan, EarningExists: true}, now, waiting).Reason)

	settled := completed(100 * time.Hour)
	assert.Equal(t, domain.ReasonEarningExists, Evaluate(Input{Payment: settled, EarningExists: true}, now, waiting).Reason)
}

func TestEvaluate_Deterministic(t *testing.T) {
	in := Input{Payment: completed(80 * time.Hour)}
	first := Evaluate(in, now, waiting)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Evaluate(in, now, waiting))
	}
}
