package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOutcomes(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementProfilesCreated()
	m.IncrementCodeCollisions()
	m.IncrementCodeCollisions()
	m.IncrementRedemption("linked")
	m.IncrementRedemption("self_referral")
	m.IncrementRedemption("linked")
	m.ObserveEnsure(time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfilesCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodeCollisions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Redemptions.WithLabelValues("linked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Redemptions.WithLabelValues("self_referral")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EnsureDuration))
}
