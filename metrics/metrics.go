package metrics

import (
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"net/http"
	"werewolf-bdd/applog"
)

// Prometheus collectors for harness traffic. Player names are bounded by the scenario
// roster, so using them as a label is safe.
var (
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harness_messages_received_total",
		Help: "Total messages received from the game server, per virtual player.",
	}, []string{"player"})
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harness_messages_sent_total",
		Help: "Total messages written to the game server, per virtual player.",
	}, []string{"player"})
	TransportErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harness_transport_errors_total",
		Help: "Total asynchronous transport failures recorded on virtual players.",
	})
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harness_open_connections",
		Help: "Current number of virtual players in the Open state.",
	})
	Scenarios = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harness_scenarios_total",
		Help: "Scenarios executed, by result.",
	}, []string{"result"})
)

// Scenario result label values.
const (
	ResultPassed = "passed"
	ResultFailed = "failed"
)

func IncReceived(player string) { MessagesReceived.WithLabelValues(player).Inc() }
func IncSent(player string)     { MessagesSent.WithLabelValues(player).Inc() }
func IncTransportError()        { TransportErrors.Inc() }
func ConnectionOpened()         { OpenConnections.Inc() }
func ConnectionClosed()         { OpenConnections.Dec() }

func ObserveScenario(passed bool) {
	if passed {
		Scenarios.WithLabelValues(ResultPassed).Inc()
		return
	}
	Scenarios.WithLabelValues(ResultFailed).Inc()
}

// StartHTTP serves Prometheus metrics at /metrics on addr in the background.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		applog.Info("Metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()
	return srv
}
