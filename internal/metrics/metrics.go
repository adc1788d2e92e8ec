// Package metrics exposes a Prometheus registry mirroring AfdStatus's
// and the FSA's read-mostly counters, served over a debug-only HTTP
// mux (spec section 6 names no such interface; this is ambient
// observability infrastructure every long-running daemon in this
// corpus carries).
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afdcore/afd/internal/shm"
)

// Collector samples AfdStatus and every FSA HostEntry on each scrape.
// It never caches: Prometheus scrapes are pull-based and infrequent
// relative to the mmap reads they trigger.
type Collector struct {
	status *shm.Status
	fsa    *shm.FSA

	jobsInQueue     *prometheus.Desc
	queueHighWater  *prometheus.Desc
	noOfTransfers   *prometheus.Desc
	forkCounter     *prometheus.Desc
	hostActive      *prometheus.Desc
	hostErrors      *prometheus.Desc
	hostFilesDone   *prometheus.Desc
	hostBytesSent   *prometheus.Desc
	hostTotalFiles  *prometheus.Desc
	hostConnections *prometheus.Desc
}

// NewCollector builds a Collector over the supervisor's status and FSA
// mappings. Either may be nil if not yet available; Collect then
// simply emits nothing for that source.
func NewCollector(status *shm.Status, fsa *shm.FSA) *Collector {
	return &Collector{
		status: status,
		fsa:    fsa,

		jobsInQueue:     prometheus.NewDesc("afd_jobs_in_queue", "Number of jobs currently queued for dispatch.", nil, nil),
		queueHighWater:  prometheus.NewDesc("afd_queue_high_water", "Highest observed queue length.", nil, nil),
		noOfTransfers:   prometheus.NewDesc("afd_transfers_total", "Total completed transfers.", nil, nil),
		forkCounter:     prometheus.NewDesc("afd_fork_total", "Total child processes forked by the supervisor.", nil, nil),
		hostActive:      prometheus.NewDesc("afd_host_active_transfers", "Active transfers for a host.", []string{"host"}, nil),
		hostErrors:      prometheus.NewDesc("afd_host_error_counter", "Current consecutive error count for a host.", []string{"host"}, nil),
		hostFilesDone:   prometheus.NewDesc("afd_host_files_done_total", "Files successfully transferred to a host.", []string{"host"}, nil),
		hostBytesSent:   prometheus.NewDesc("afd_host_bytes_sent_total", "Bytes successfully transferred to a host.", []string{"host"}, nil),
		hostTotalFiles:  prometheus.NewDesc("afd_host_total_files", "Files currently staged for a host.", []string{"host"}, nil),
		hostConnections: prometheus.NewDesc("afd_host_connections_total", "Connections opened to a host.", []string{"host"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsInQueue
	ch <- c.queueHighWater
	ch <- c.noOfTransfers
	ch <- c.forkCounter
	ch <- c.hostActive
	ch <- c.hostErrors
	ch <- c.hostFilesDone
	ch <- c.hostBytesSent
	ch <- c.hostTotalFiles
	ch <- c.hostConnections
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.status != nil {
		st := c.status.Read()
		ch <- prometheus.MustNewConstMetric(c.jobsInQueue, prometheus.GaugeValue, float64(st.JobsInQueue))
		ch <- prometheus.MustNewConstMetric(c.queueHighWater, prometheus.GaugeValue, float64(st.QueueLengthHighWater))
		ch <- prometheus.MustNewConstMetric(c.noOfTransfers, prometheus.CounterValue, float64(st.NoOfTransfers))
		ch <- prometheus.MustNewConstMetric(c.forkCounter, prometheus.CounterValue, float64(st.ForkCounter))
	}
	if c.fsa != nil {
		for i := 0; i < c.fsa.NumHosts(); i++ {
			e := c.fsa.Read(i)
			if e.Alias == "" {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.hostActive, prometheus.GaugeValue, float64(e.ActiveTransfers), e.Alias)
			ch <- prometheus.MustNewConstMetric(c.hostErrors, prometheus.GaugeValue, float64(e.ErrorCounter), e.Alias)
			ch <- prometheus.MustNewConstMetric(c.hostFilesDone, prometheus.CounterValue, float64(e.FileCounterDone), e.Alias)
			ch <- prometheus.MustNewConstMetric(c.hostBytesSent, prometheus.CounterValue, float64(e.BytesSent), e.Alias)
			ch <- prometheus.MustNewConstMetric(c.hostTotalFiles, prometheus.GaugeValue, float64(e.TotalFileCounter), e.Alias)
			ch <- prometheus.MustNewConstMetric(c.hostConnections, prometheus.CounterValue, float64(e.Connections), e.Alias)
		}
	}
}

// NewServeMux builds the debug HTTP surface: /metrics for Prometheus
// scrape, /healthz for a trivial liveness probe.
func NewServeMux(collector *Collector) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
