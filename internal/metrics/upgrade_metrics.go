package metrics

import (
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UpgradeMetrics интерфейс для метрик покупок апгрейдов
type UpgradeMetrics interface {
	IncIntentCreated(currency string)
	IncIntentStatus(status string)
	IncReconciliation(funding string)
	IncReconciliationConflict()
	IncRefund(reason string)
	IncCreditsConsumed(productType string, credits int64)
	ObserveCheckoutAmount(amount int64, currency string)
}

type upgradeMetrics struct {
	log                     *logger.Logger
	intentsCreated          *prometheus.CounterVec
	intentsStatus           *prometheus.CounterVec
	reconciliations         *prometheus.CounterVec
	reconciliationConflicts prometheus.Counter
	refunds                 *prometheus.CounterVec
	creditsConsumed         *prometheus.CounterVec
	checkoutAmount          *prometheus.HistogramVec
}

// NewUpgradeMetrics создает новые метрики апгрейдов
func NewUpgradeMetrics(registry prometheus.Registerer, log *logger.Logger) UpgradeMetrics {
	factory := promauto.With(registry)

	return &upgradeMetrics{
		log: log,
		intentsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_payment_intents_created_total",
				Help: "The total number of created payment intents",
			},
			[]string{"currency"},
		),
		intentsStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_payment_intents_status_total",
				Help: "The total number of payment intent status transitions",
			},
			[]string{"status"},
		),
		reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_reconciliations_total",
				Help: "The total number of purchases applied to release distribution",
			},
			[]string{"funding"},
		),
		reconciliationConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "upgrade_reconciliation_conflicts_total",
				Help: "The total number of failed reconciliations due to conflicts",
			},
		),
		refunds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_refunds_total",
				Help: "The total number of paid intents refunded because they could not be applied",
			},
			[]string{"reason"},
		),
		creditsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_credits_consumed_total",
				Help: "The total number of consumed upgrade credits",
			},
			[]string{"product_type"},
		),
		checkoutAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upgrade_checkout_amount",
				Help:    "Checkout amounts distribution in minor units",
				Buckets: prometheus.ExponentialBuckets(1000, 10, 5), // 1000, 10000, 100000, 1000000, 10000000
			},
			[]string{"currency"},
		),
	}
}

// IncIntentCreated увеличивает счетчик созданных платежных намерений
func (m *upgradeMetrics) IncIntentCreated(currency string) {
	m.intentsCreated.WithLabelValues(currency).Inc()
}

// IncIntentStatus увеличивает счетчик переходов статуса
func (m *upgradeMetrics) IncIntentStatus(status string) {
	m.intentsStatus.WithLabelValues(status).Inc()
}

// IncReconciliation увеличивает счетчик примененных покупок
func (m *upgradeMetrics) IncReconciliation(funding string) {
	m.reconciliations.WithLabelValues(funding).Inc()
}

// IncReconciliationConflict увеличивает счетчик конфликтов
func (m *upgradeMetrics) IncReconciliationConflict() {
	m.reconciliationConflicts.Inc()
}

// IncRefund увеличивает счетчик возвратов
func (m *upgradeMetrics) IncRefund(reason string) {
	m.refunds.WithLabelValues(reason).Inc()
}

// IncCreditsConsumed увеличивает счетчик списанных кредитов
func (m *upgradeMetrics) IncCreditsConsumed(productType string, credits int64) {
	m.creditsConsumed.WithLabelValues(productType).Add(float64(credits))
}

// ObserveCheckoutAmount записывает сумму оформления
func (m *upgradeMetrics) ObserveCheckoutAmount(amount int64, currency string) {
	m.checkoutAmount.WithLabelValues(currency).Observe(float64(amount))
}

// Nop метрики-заглушки для тестов и вспомогательных команд
type Nop struct{}

func (Nop) IncIntentCreated(string)             {}
func (Nop) IncIntentStatus(string)              {}
func (Nop) IncReconciliation(string)            {}
func (Nop) IncReconciliationConflict()          {}
func (Nop) IncRefund(string)                    {}
func (Nop) IncCreditsConsumed(string, int64)    {}
func (Nop) ObserveCheckoutAmount(int64, string) {}
