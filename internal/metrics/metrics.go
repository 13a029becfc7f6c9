// Package metrics Prometheus-метрики бота.
//
//   - digitbot_ticks_total{symbol}              тики, прошедшие через пайплайн
//   - digitbot_contracts_total{result}          purchased|won|lost
//   - digitbot_errors_total{kind}               error-события по классам
//   - digitbot_cumulative_profit                накопленный профит текущего прогона
//   - digitbot_stake                            ставка последней покупки
//   - digitbot_session_reconnects_total         переподключения к бирже
//   - digitbot_request_duration_seconds{msg}    время ответа биржи
//   - digitbot_relay_pairs                      активные пары relay
//   - digitbot_relay_frames_total{direction}    кадры через relay
package metrics

import (
	"digit_bot/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Ticks            *prometheus.CounterVec
	Contracts        *prometheus.CounterVec
	Errors           *prometheus.CounterVec
	CumulativeProfit prometheus.Gauge
	Stake            prometheus.Gauge
	Reconnects       prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
	RelayPairs       prometheus.Gauge
	RelayFrames      *prometheus.CounterVec
}

// NewRegistry отдельный реестр на инстанс, чтобы движки не конфликтовали в тестах.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "digitbot_ticks_total", Help: "Ticks processed by the pipeline"},
			[]string{"symbol"},
		),
		Contracts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "digitbot_contracts_total", Help: "Contracts by result"},
			[]string{"result"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "digitbot_errors_total", Help: "Error events by kind"},
			[]string{"kind"},
		),
		CumulativeProfit: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "digitbot_cumulative_profit", Help: "Cumulative profit of the current run"},
		),
		Stake: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "digitbot_stake", Help: "Stake of the last purchase"},
		),
		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "digitbot_session_reconnects_total", Help: "Exchange reconnect attempts"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digitbot_request_duration_seconds",
				Help:    "Exchange request round trip",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"msg_type"},
		),
		RelayPairs: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "digitbot_relay_pairs", Help: "Active relay connection pairs"},
		),
		RelayFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "digitbot_relay_frames_total", Help: "Frames forwarded by the relay"},
			[]string{"direction"},
		),
	}
	reg.MustRegister(
		m.Ticks, m.Contracts, m.Errors, m.CumulativeProfit, m.Stake,
		m.Reconnects, m.RequestDuration, m.RelayPairs, m.RelayFrames,
	)
	return m
}

// Observe слушатель шины событий.
func (m *Metrics) Observe(ev models.TradingEvent) {
	switch p := ev.Payload.(type) {
	case models.TickPayload:
		m.Ticks.WithLabelValues(p.Tick.Symbol).Inc()
	case models.ErrorPayload:
		m.Errors.WithLabelValues(p.Kind).Inc()
	case models.ContractPayload:
		switch ev.Kind {
		case models.EventContractPurchased:
			m.Contracts.WithLabelValues("purchased").Inc()
			m.Stake.Set(p.Contract.Stake)
		case models.EventContractFinished:
			m.Contracts.WithLabelValues(string(p.Contract.Status)).Inc()
		}
	case models.RunPayload:
		m.CumulativeProfit.Set(p.CumulativeProfit)
	}
}
