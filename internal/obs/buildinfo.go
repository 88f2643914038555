package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoMu  sync.Mutex
	buildInfoSet bool

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adminhub_build_info",
			Help: "Constant 1, labelled with the running build.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes the running build. A later call replaces the
// labels set by an earlier one.
func InitBuildInfo(version, commit string) {
	buildInfoMu.Lock()
	defer buildInfoMu.Unlock()
	if !buildInfoSet {
		prometheus.MustRegister(buildInfo)
		buildInfoSet = true
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
