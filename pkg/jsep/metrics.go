package jsep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics собирает метрики согласования для Prometheus.
//
// Один экземпляр можно разделять между несколькими сессиями. Все методы
// допускают nil получатель, поэтому сессия без метрик не проверяет их наличие.
type Metrics struct {
	offersCreated       prometheus.Counter
	answersCreated      prometheus.Counter
	descriptionsApplied *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	sessionsByState     *prometheus.GaugeVec
	pairsNegotiated     prometheus.Counter
}

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	// Namespace префикс для Prometheus метрик
	Namespace string

	// Subsystem подсистема для Prometheus метрик
	Subsystem string

	// Registerer регистр метрик; nil означает prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "jsep",
		Subsystem: "session",
	}
}

// NewMetrics создает и регистрирует метрики
func NewMetrics(config MetricsConfig) *Metrics {
	registerer := config.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		offersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "offers_created_total",
			Help:      "Total number of SDP offers created",
		}),
		answersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "answers_created_total",
			Help:      "Total number of SDP answers created",
		}),
		descriptionsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "descriptions_applied_total",
			Help:      "Total number of session descriptions applied by side and type",
		}, []string{"side", "type"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "errors_total",
			Help:      "Total number of failed session operations by error code",
		}, []string{"code"}),
		sessionsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "signaling_state",
			Help:      "Number of sessions in each signaling state",
		}, []string{"state"}),
		pairsNegotiated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "track_pairs_negotiated_total",
			Help:      "Total number of track pairs produced by completed negotiations",
		}),
	}
}

func (m *Metrics) offerCreated() {
	if m == nil {
		return
	}
	m.offersCreated.Inc()
}

func (m *Metrics) answerCreated() {
	if m == nil {
		return
	}
	m.answersCreated.Inc()
}

func (m *Metrics) descriptionApplied(side string, sdpType SdpType) {
	if m == nil {
		return
	}
	m.descriptionsApplied.WithLabelValues(side, sdpType.String()).Inc()
}

func (m *Metrics) errorOccurred(code JsepErrorCode) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code.String()).Inc()
}

func (m *Metrics) sessionCreated(state SignalingState) {
	if m == nil {
		return
	}
	m.sessionsByState.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) stateChanged(from, to SignalingState) {
	if m == nil {
		return
	}
	m.sessionsByState.WithLabelValues(from.String()).Dec()
	m.sessionsByState.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) sessionClosed(state SignalingState) {
	if m == nil {
		return
	}
	m.sessionsByState.WithLabelValues(state.String()).Dec()
}

func (m *Metrics) negotiated(pairs int) {
	if m == nil {
		return
	}
	m.pairsNegotiated.Add(float64(pairs))
}
