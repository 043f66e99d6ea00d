// Command gpucache_server hosts a BlobCache wired up from a Jsonnet
// configuration file and exposes its Prometheus metrics over HTTP,
// following the teacher's convention (cmd/bb_replicator and friends) of
// driving a long-running process from a single jsonnet argument, though
// without the full pkg/global diagnostics server: a gpucache cache has
// no gRPC surface of its own to serve, only metrics to export.
package main

import (
	"flag"
	"log"
	"net/http"
	"regexp"

	"github.com/gorilla/mux"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/buildbarn/gpucache/pkg/gpucache/configuration"
	gpucache_prometheus "github.com/buildbarn/gpucache/pkg/prometheus"
	"github.com/buildbarn/gpucache/pkg/util"
)

func main() {
	listenAddress := flag.String("listen-address", ":9095", "Address to serve /metrics on")
	metricNamePattern := flag.String("metric-name-pattern", "", "If set, only export metric names matching this regular expression")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Usage: gpucache_server [-listen-address=...] [-metric-name-pattern=...] config.jsonnet")
	}

	c, err := configuration.Load(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read configuration from %s: %s", flag.Arg(0), err)
	}

	cache, _, err := configuration.NewBlobCache(c, util.DefaultErrorLogger)
	if err != nil {
		log.Fatal("Failed to create blob cache: ", err)
	}
	// The cache itself has no further setup: it is driven entirely by
	// callers of cacherequest.LoadOrRun embedded in this process, or
	// (in a future iteration) by a gRPC front end accepting
	// LoadOrRun-shaped requests over the wire. For now this binary's
	// only job is to keep that cache's metrics observable.
	_ = cache

	var gatherer prom.Gatherer = prom.DefaultGatherer
	if *metricNamePattern != "" {
		pattern, err := regexp.Compile(*metricNamePattern)
		if err != nil {
			log.Fatal("Invalid -metric-name-pattern: ", err)
		}
		gatherer = gpucache_prometheus.NewNameFilteringGatherer(gatherer, pattern)
	}

	router := mux.NewRouter()
	util.RegisterAdministrativeHTTPEndpoints(router, gatherer)
	log.Printf("Serving metrics on %s", *listenAddress)
	log.Fatal(http.ListenAndServe(*listenAddress, router))
}
