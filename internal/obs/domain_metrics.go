package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// EmailSendTotal counts send engine outcomes by result and reason code.
	EmailSendTotal *prometheus.CounterVec
	// QuickActionTotal counts quick-action invocations by action and result.
	QuickActionTotal *prometheus.CounterVec
	// ProfileAutoCreateTotal counts email profiles created on first access.
	ProfileAutoCreateTotal prometheus.Counter
	// HookRenderTotal counts hook fragment renders by slot and result.
	HookRenderTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors. Safe to call more than once.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		EmailSendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_send_total",
			Help:      "Count of send engine outcomes by result and reason.",
		}, []string{"result", "reason"})
		QuickActionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quick_action_total",
			Help:      "Count of quick-action invocations by action and result.",
		}, []string{"action", "result"})
		ProfileAutoCreateTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_profile_autocreate_total",
			Help:      "Number of email profiles created on first access.",
		})
		HookRenderTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_render_total",
			Help:      "Count of template hook fragment renders by slot and result.",
		}, []string{"slot", "result"})

		mustRegisterCollector(reg, EmailSendTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EmailSendTotal = v
			}
		})
		mustRegisterCollector(reg, QuickActionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuickActionTotal = v
			}
		})
		mustRegisterCollector(reg, ProfileAutoCreateTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ProfileAutoCreateTotal = v
			}
		})
		mustRegisterCollector(reg, HookRenderTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				HookRenderTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
