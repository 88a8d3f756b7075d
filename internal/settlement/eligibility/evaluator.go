// Package eligibility decides whether a completed payment may be settled.
package eligibility

import (
	"time"

	paymentdomain "github.com/smallbiznis/payout/internal/payment/domain"
	"github.com/smallbiznis/payout/internal/settlement/domain"
)

// Input is everything the evaluator looks at for one payment.
type Input struct {
	Payment       paymentdomain.Payment
	Refunds       []paymentdomain.Refund
	EarningExists bool
}

// Evaluate applies the settlement rules in order and reports the first one that
// fails. It has no side effects.
func Evaluate(in Input, now time.Time, waitingPeriod time.Duration) domain.Decision {
	p := in.Payment
	switch {
	case p.Status != paymentdomain.PaymentStatusCompleted:
		return reject(domain.ReasonNotCompleted)
	case p.PaidOutAt != nil:
		return reject(domain.ReasonAlreadyPaidOut)
	case now.Sub(p.UpdatedAt) < waitingPeriod:
		return reject(domain.ReasonWithinWaitingPeriod)
	case hasBlockingRefund(in.Refunds):
		return reject(domain.ReasonBlockedByRefund)
	case p.CourseID == 0 || p.InstructorID == 0:
		return reject(domain.ReasonUnresolvableCourse)
	case in.EarningExists:
		return reject(domain.ReasonEarningExists)
	}
	return domain.Decision{Eligible: true, Reason: domain.ReasonEligible}
}

func hasBlockingRefund(refunds []paymentdomain.Refund) bool {
	for _, r := range refunds {
		if r.Status.Blocks() {
			return true
		}
	}
	return false
}

func reject(reason domain.Reason) domain.Decision {
	return domain.Decision{Reason: reason}
}
