package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Outcome значения метки outcome у попыток резолвера
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeTerminal  = "terminal"
	OutcomeSkipped   = "skipped"
)

// Metrics счетчики клиента
type Metrics struct {
	ResolverAttempts  *prometheus.CounterVec
	ResolverFallbacks *prometheus.CounterVec
	TransferStates    *prometheus.CounterVec
}

// New регистрирует счетчики клиента в reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolverAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userpay_resolver_attempts_total",
			Help: "Endpoint resolver attempts per candidate route",
		}, []string{"operation", "route", "outcome"}),
		ResolverFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userpay_resolver_fallbacks_total",
			Help: "Times a later candidate route was tried after a retryable failure",
		}, []string{"operation"}),
		TransferStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userpay_transfer_transitions_total",
			Help: "Transfer coordinator state transitions",
		}, []string{"currency", "state"}),
	}

	if reg != nil {
		reg.MustRegister(m.ResolverAttempts, m.ResolverFallbacks, m.TransferStates)
	}

	return m
}

// NewUnregistered счетчики без регистрации, для тестов и встраивания
func NewUnregistered() *Metrics {
	return New(nil)
}

// LogSnapshot пишет текущие значения счетчиков в лог на уровне debug
func LogSnapshot(g prometheus.Gatherer, logger logrus.FieldLogger) {
	families, err := g.Gather()
	if err != nil {
		logger.Warnf("Failed to gather metrics: %v", err)
		return
	}

	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			fields := logrus.Fields{"metric": mf.GetName()}
			for _, label := range metric.GetLabel() {
				fields[label.GetName()] = label.GetValue()
			}
			logger.WithFields(fields).Debugf("value=%v", metric.GetCounter().GetValue())
		}
	}
}
