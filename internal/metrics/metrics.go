// Package metrics собирает Prometheus-метрики сервера в отдельном регистре.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Исходы обработки запроса на изменение блока
const (
	EditCommitted = "committed"
	EditDenied    = "denied"
	EditVetoed    = "vetoed"
	EditInvalid   = "invalid"
	EditOutside   = "out_of_bounds"
	EditExternal  = "external"
	EditFailed    = "failed"
)

// Metrics метрики игрового сервера
type Metrics struct {
	registry *prometheus.Registry

	Sessions           prometheus.Gauge
	Connections        prometheus.Counter
	MessagesDecoded    *prometheus.CounterVec
	Edits              *prometheus.CounterVec
	LevelBytes         prometheus.Counter
	ProtocolViolations prometheus.Counter
	Kicks              prometheus.Counter
	Broadcasts         prometheus.Counter
}

// New создаёт метрики в собственном регистре (плюс go/process коллекторы)
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blockverse",
			Name:      "sessions",
			Help:      "Число открытых игровых сессий.",
		}),
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockverse",
			Name:      "connections_total",
			Help:      "Принятые подключения.",
		}),
		MessagesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockverse",
			Name:      "messages_decoded_total",
			Help:      "Декодированные сообщения клиентов по типу.",
		}, []string{"type"}),
		Edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockverse",
			Name:      "block_edits_total",
			Help:      "Запросы на изменение блока по исходу.",
		}, []string{"outcome"}),
		LevelBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockverse",
			Name:      "level_bytes_sent_total",
			Help:      "Байт уровня, отправленных клиентам.",
		}),
		ProtocolViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockverse",
			Name:      "protocol_violations_total",
			Help:      "Нарушения протокола (неизвестный тип и т.п.).",
		}),
		Kicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockverse",
			Name:      "kicks_total",
			Help:      "Отключения по инициативе сервера.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blockverse",
			Name:      "broadcasts_total",
			Help:      "События, прошедшие через очередь рассылки.",
		}),
	}

	reg.MustRegister(
		m.Sessions, m.Connections, m.MessagesDecoded, m.Edits,
		m.LevelBytes, m.ProtocolViolations, m.Kicks, m.Broadcasts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry регистр для дополнительных коллекторов
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler HTTP-обработчик /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve поднимает отдельный HTTP-сервер метрик до отмены ctx
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Info("Prometheus /metrics доступен по адресу %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Nil-safe помощники: сессии в тестах работают без метрик.

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.Sessions.Inc()
		m.Connections.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

func (m *Metrics) Decoded(typeName string) {
	if m != nil {
		m.MessagesDecoded.WithLabelValues(typeName).Inc()
	}
}

func (m *Metrics) Edit(outcome string) {
	if m != nil {
		m.Edits.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) LevelSent(n int) {
	if m != nil {
		m.LevelBytes.Add(float64(n))
	}
}

func (m *Metrics) Violation() {
	if m != nil {
		m.ProtocolViolations.Inc()
	}
}

func (m *Metrics) Kicked() {
	if m != nil {
		m.Kicks.Inc()
	}
}

func (m *Metrics) Broadcast() {
	if m != nil {
		m.Broadcasts.Inc()
	}
}
