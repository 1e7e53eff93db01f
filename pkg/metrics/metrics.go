package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvisioningMetrics records tenant database provisioning outcomes.
type ProvisioningMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewProvisioningMetrics registers provisioning metrics on the provided registerer.
func NewProvisioningMetrics(reg prometheus.Registerer) *ProvisioningMetrics {
	if reg == nil {
		return &ProvisioningMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenant_provisioning_duration_seconds",
		Help:    "Duration of tenant database provisioning in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"driver"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenant_provisioning_success",
		Help: "Successful tenant provisioning runs.",
	}, []string{"driver"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenant_provisioning_failure",
		Help: "Failed tenant provisioning runs.",
	}, []string{"driver", "stage"})
	reg.MustRegister(duration, success, failure)
	return &ProvisioningMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records how long a provisioning run took.
func (p *ProvisioningMetrics) ObserveDuration(driver string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(driver)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the driver.
func (p *ProvisioningMetrics) IncSuccess(driver string) {
	if p == nil || p.success == nil {
		return
	}
	p.success.WithLabelValues(normalizeLabel(driver)).Inc()
}

// IncFailure increments the failure counter for the driver and stage.
func (p *ProvisioningMetrics) IncFailure(driver, stage string) {
	if p == nil || p.failure == nil {
		return
	}
	p.failure.WithLabelValues(normalizeLabel(driver), normalizeLabel(stage)).Inc()
}

// CheckoutMetrics records order placement outcomes.
type CheckoutMetrics struct {
	duration  *prometheus.HistogramVec
	placed    *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	depletion prometheus.Counter
}

// NewCheckoutMetrics registers checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of order placement in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"payment_method"})
	placed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_placed",
		Help: "Orders successfully placed.",
	}, []string{"payment_method"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_rejected",
		Help: "Order placements rejected.",
	}, []string{"reason"})
	depletion := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_depleted",
		Help: "Variants whose stock hit zero during checkout.",
	})
	reg.MustRegister(duration, placed, rejected, depletion)
	return &CheckoutMetrics{
		duration:  duration,
		placed:    placed,
		rejected:  rejected,
		depletion: depletion,
	}
}

// ObserveDuration records how long an order placement took.
func (c *CheckoutMetrics) ObserveDuration(method string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
}

// IncPlaced increments the placed counter for the payment method.
func (c *CheckoutMetrics) IncPlaced(method string) {
	if c == nil || c.placed == nil {
		return
	}
	c.placed.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncRejected increments the rejected counter for the reason.
func (c *CheckoutMetrics) IncRejected(reason string) {
	if c == nil || c.rejected == nil {
		return
	}
	c.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncStockDepleted increments the depletion counter.
func (c *CheckoutMetrics) IncStockDepleted() {
	if c == nil || c.depletion == nil {
		return
	}
	c.depletion.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
