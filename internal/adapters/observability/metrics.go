package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "bookingfeed"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "poll_cycles_total", Help: "Poll cycles by trigger and result."},
		[]string{"trigger", "result"}, // result: ok|failed|busy|disabled
	)
	PollCycleLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_cycle_duration_seconds",
			Help:    "Poll cycle duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	LocationPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_polls_total", Help: "Per-location poll outcomes."},
		[]string{"outcome"}, // outcome: stored|failed|skipped
	)
	BufferRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "buffer_records_total", Help: "Incoming bookings by append result."},
		[]string{"result"}, // result: stored|invalid|duplicate|failed
	)
	BufferEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "buffer_evicted_total", Help: "Records removed by TTL sweeps."},
	)
	BufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "buffer_records", Help: "Records currently buffered."},
	)
	FeedQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "feed_queries_total", Help: "Consumer feed polls."},
		[]string{"result"}, // result: ok|invalid|error
	)
	FeedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "feed_records_total", Help: "Records returned to consumers."},
	)
)

// Serve exposes /metrics on its own listener; an empty addr disables it.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(InitRegistry()))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// InitRegistry returns a registry holding every collector of this package.
// Collectors are shared, so each call builds a fresh registry around them.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		PollCycles, PollCycleLatency, LocationPolls,
		BufferRecords, BufferEvicted, BufferSize,
		FeedQueries, FeedRecords,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del|error
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObservePollCycle(trigger, result string, dur time.Duration) {
	PollCycles.WithLabelValues(trigger, result).Inc()
	if dur > 0 {
		PollCycleLatency.Observe(dur.Seconds())
	}
}

func ObserveLocationPoll(outcome string) {
	LocationPolls.WithLabelValues(outcome).Inc()
}

func ObserveRecords(result string, n int) {
	if n > 0 {
		BufferRecords.WithLabelValues(result).Add(float64(n))
	}
}

func ObserveEviction(removed int64, remaining int64) {
	BufferEvicted.Add(float64(removed))
	BufferSize.Set(float64(remaining))
}

func ObserveFeed(result string, records int) {
	FeedQueries.WithLabelValues(result).Inc()
	FeedRecords.Add(float64(records))
}
