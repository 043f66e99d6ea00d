package util

import (
	"net/http"
	// The pprof package does not provide a function for registering
	// its endpoints against an arbitrary mux. Load it to force
	// registration against the default mux, so we can forward
	// traffic to that mux instead.
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterAdministrativeHTTPEndpoints registers the HTTP endpoints used
// by every gpucache process that exposes a metrics port: a Prometheus
// scrape endpoint reading from gatherer, a liveness probe, and pprof's
// profiling endpoints. gatherer is taken as a parameter rather than
// fixed to prometheus.DefaultGatherer so that callers filtering metric
// names (see pkg/prometheus.NewNameFilteringGatherer) can still use
// this one registration helper.
func RegisterAdministrativeHTTPEndpoints(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.HandleFunc("/-/healthy", func(http.ResponseWriter, *http.Request) {})
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
}
