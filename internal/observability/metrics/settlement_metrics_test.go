package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"deadline":      {context.DeadlineExceeded, JobReasonDeadlineExceeded},
		"wrapped lock":  {fmt.Errorf("scan: %w", &pgconn.PgError{Code: "55P03"}), JobReasonDBLockTimeout},
		"serialization": {&pgconn.PgError{Code: "40001"}, JobReasonSerializationFailure},
		"deadlock":      {&pgconn.PgError{Code: "40P01"}, JobReasonDeadlock},
		"duplicate":     {gorm.ErrDuplicatedKey, JobReasonUniqueViolation},
		"other":         {errors.New("boom"), JobReasonUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobReason(tc.err))
		})
	}
}

func TestSettlementMetricsRegistersWithConstLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSettlementMetrics(registry, Config{ServiceName: "payout", Environment: "test"})

	m.ObserveOutcome(OutcomeSettled, "eligible")
	m.ObserveOutcome(OutcomeSettled, "eligible")
	m.ObserveOutcome(OutcomeSkipped, "already_paid_out")
	m.AddEarnedAmount(12.5)
	m.AddEarnedAmount(-1)
	m.SetIntegrityAnomalies("paid_out_without_earning", 3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomeSettled, "eligible")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomeSkipped, "already_paid_out")))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.earnedAmount))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.integrity.WithLabelValues("paid_out_without_earning")))

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		for _, metric := range mf.Metric {
			labels := map[string]string{}
			for _, lp := range metric.Label {
				labels[lp.GetName()] = lp.GetValue()
			}
			assert.Equal(t, "payout", labels["service"], mf.GetName())
			assert.Equal(t, "test", labels["env"], mf.GetName())
		}
	}
}

func TestNilSettlementMetricsIsSafe(t *testing.T) {
	var m *SettlementMetrics
	assert.NotPanics(t, func() {
		m.IncJobRun("settlement")
		m.ObserveOutcome(OutcomeFailed, "transient")
		m.IncJobError("settlement", errors.New("x"))
	})
}

func TestFilterAttributesDropsIdentifiers(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("trigger", "manual"),
		attribute.String("payment_id", "123"),
		attribute.String("reason", "eligible"),
	)
	require.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("payment_id"), attr.Key)
	}
}
