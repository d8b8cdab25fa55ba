// Package metrics exposes the gateway's prometheus metrics. Every metric is a
// package-level function variable that is a NOP until InitMetrics is called with
// a non-zero port, so callers can record metrics unconditionally.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// InitMetrics initializes metrics. If the passed port is zero, no action is taken. Otherwise,
// the function creates the go runtime and shellcache metrics and serves them on the passed
// port under the '/metrics' path.
func InitMetrics(port int64) {
	if port == 0 {
		return
	}
	addGoRuntimeMetrics()
	addShellcacheMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Errorf("metrics server on port %d exited: %s", port, err)
		}
	}()
}
