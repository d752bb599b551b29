package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoicesTotal counts invoice lifecycle outcomes by action and result.
	InvoicesTotal *prometheus.CounterVec
	// PaymentsRecordedTotal counts recorded payments by resulting state.
	PaymentsRecordedTotal *prometheus.CounterVec
	// CoinsRedeemedTotal accumulates the coin amounts redeemed on invoices.
	CoinsRedeemedTotal prometheus.Counter
	// RemindersSentTotal counts due-date reminder deliveries by result.
	RemindersSentTotal *prometheus.CounterVec
	// AppointmentsTotal counts appointment transitions by target status.
	AppointmentsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific
// Prometheus collectors. Safe to call more than once.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoicesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_total",
			Help:      "Count of invoice operations by action and result.",
		}, []string{"action", "result"})
		PaymentsRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Count of recorded invoice payments by resulting payment state.",
		}, []string{"state"})
		CoinsRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coins_redeemed_total",
			Help:      "Total coin amount redeemed against invoices.",
		})
		RemindersSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Count of due-date reminder deliveries by result.",
		}, []string{"result"})
		AppointmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_total",
			Help:      "Count of appointment status transitions.",
		}, []string{"status"})

		registerDomain(reg, InvoicesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoicesTotal = v
			}
		})
		registerDomain(reg, PaymentsRecordedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentsRecordedTotal = v
			}
		})
		registerDomain(reg, CoinsRedeemedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CoinsRedeemedTotal = v
			}
		})
		registerDomain(reg, RemindersSentTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RemindersSentTotal = v
			}
		})
		registerDomain(reg, AppointmentsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AppointmentsTotal = v
			}
		})
	})
}

func registerDomain(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
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
