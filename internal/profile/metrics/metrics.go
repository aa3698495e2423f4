package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the profile module.
// Tracks profile creation, code collisions, redemption outcomes and
// lifecycle operation durations.
type Metrics struct {
	ProfilesCreated   prometheus.Counter
	CodeCollisions    prometheus.Counter
	CodesExhausted    prometheus.Counter
	Redemptions       *prometheus.CounterVec
	EnsureDuration    prometheus.Histogram
	RedemptionLatency prometheus.Histogram
}

// New registers the profile metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the profile metrics with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProfilesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "referral_profiles_created_total",
			Help: "Total number of profiles created",
		}),
		CodeCollisions: factory.NewCounter(prometheus.CounterOpts{
			Name: "referral_code_collisions_total",
			Help: "Total number of generated referral codes that were already taken",
		}),
		CodesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "referral_code_generation_exhausted_total",
			Help: "Total number of code generations that ran out of attempts",
		}),
		Redemptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_redemptions_total",
			Help: "Total number of redemption attempts by outcome",
		}, []string{"outcome"}),
		EnsureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_ensure_profile_duration_seconds",
			Help:    "Duration of EnsureProfile operations (first request after sign-in)",
			Buckets: durationBuckets,
		}),
		RedemptionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_redeem_duration_seconds",
			Help:    "Duration of Redeem operations",
			Buckets: durationBuckets,
		}),
	}
}

// IncrementProfilesCreated records a successful profile creation.
func (m *Metrics) IncrementProfilesCreated() {
	m.ProfilesCreated.Inc()
}

// IncrementCodeCollisions records a generated code that was already taken.
func (m *Metrics) IncrementCodeCollisions() {
	m.CodeCollisions.Inc()
}

// IncrementCodesExhausted records a generation that gave up.
func (m *Metrics) IncrementCodesExhausted() {
	m.CodesExhausted.Inc()
}

// IncrementRedemption records a redemption attempt. outcome is "linked" or
// the domain error code that rejected it.
func (m *Metrics) IncrementRedemption(outcome string) {
	m.Redemptions.WithLabelValues(outcome).Inc()
}

// ObserveEnsure records the duration of an EnsureProfile operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEnsure(start time.Time) {
	m.EnsureDuration.Observe(time.Since(start).Seconds())
}

// ObserveRedeem records the duration of a Redeem operation.
func (m *Metrics) ObserveRedeem(start time.Time) {
	m.RedemptionLatency.Observe(time.Since(start).Seconds())
}
