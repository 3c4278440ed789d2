package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the scan/range workflow.
// A nil Collector is valid and records nothing, so the workflow can run
// without metrics wired.
type Collector struct {
	gatherer prometheus.Gatherer

	ScanCycles       *prometheus.CounterVec
	RangingRequests  prometheus.Counter
	RangingBSSIDs    prometheus.Counter
	RangingFailures  prometheus.Counter
	DistancesMerged  prometheus.Counter
	DisplayEntries   prometheus.Gauge
	TriggersRejected prometheus.Counter
	TableEvents      *prometheus.CounterVec
	ListenerErrors   prometheus.Counter
}

// NewCollector registers the workflow metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	scanCycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtt_scan_cycles_total",
		Help: "Total number of scan cycles, labeled by how the scan phase ended.",
	}, []string{"result"})
	if err := reg.Register(scanCycles); err != nil {
		return nil, err
	}

	rangingRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtt_ranging_requests_total",
		Help: "Total number of ranging requests issued.",
	})
	if err := reg.Register(rangingRequests); err != nil {
		return nil, err
	}

	rangingBSSIDs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtt_ranging_bssids_total",
		Help: "Total number of BSSIDs carried by ranging requests.",
	})
	if err := reg.Register(rangingBSSIDs); err != nil {
		return nil, err
	}

	rangingFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtt_ranging_failures_total",
		Help: "Total number of ranging requests that failed or timed out.",
	})
	if err := reg.Register(rangingFailures); err != nil {
		return nil, err
	}

	distancesMerged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtt_distances_merged_total",
		Help: "Total number of distance measurements merged into the display.",
	})
	if err := reg.Register(distancesMerged); err != nil {
		return nil, err
	}

	displayEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtt_display_entries",
		Help: "Current number of entries on the display.",
	})
	if err := reg.Register(displayEntries); err != nil {
		return nil, err
	}

	triggersRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtt_triggers_rejected_total",
		Help: "Total number of triggers rejected because a cycle was active.",
	})
	if err := reg.Register(triggersRejected); err != nil {
		return nil, err
	}

	tableEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtt_table_events_total",
		Help: "Total number of registry table change notifications, labeled by table and operation.",
	}, []string{"table", "operation"})
	if err := reg.Register(tableEvents); err != nil {
		return nil, err
	}

	listenerErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rtt_listener_errors_total",
		Help: "Total number of errors raised by the registry table listeners.",
	})
	if err := reg.Register(listenerErrors); err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		ScanCycles:       scanCycles,
		RangingRequests:  rangingRequests,
		RangingBSSIDs:    rangingBSSIDs,
		RangingFailures:  rangingFailures,
		DistancesMerged:  distancesMerged,
		DisplayEntries:   displayEntries,
		TriggersRejected: triggersRejected,
		TableEvents:      tableEvents,
		ListenerErrors:   listenerErrors,
	}, nil
}

func (c *Collector) ObserveCycle(result string) {
	if c == nil {
		return
	}
	c.ScanCycles.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveRangingRequest(bssids int) {
	if c == nil {
		return
	}
	c.RangingRequests.Inc()
	c.RangingBSSIDs.Add(float64(bssids))
}

func (c *Collector) ObserveRangingFailure() {
	if c == nil {
		return
	}
	c.RangingFailures.Inc()
}

func (c *Collector) ObserveDistancesMerged(matched int) {
	if c == nil {
		return
	}
	c.DistancesMerged.Add(float64(matched))
}

func (c *Collector) SetDisplayEntries(count int) {
	if c == nil {
		return
	}
	c.DisplayEntries.Set(float64(count))
}

func (c *Collector) ObserveTriggerRejected() {
	if c == nil {
		return
	}
	c.TriggersRejected.Inc()
}

func (c *Collector) ObserveTableEvent(table, operation string) {
	if c == nil {
		return
	}
	c.TableEvents.WithLabelValues(table, operation).Inc()
}

func (c *Collector) ObserveListenerError() {
	if c == nil {
		return
	}
	c.ListenerErrors.Inc()
}

// Handler exposes the collector's registry over HTTP.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
