package compilerstore

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"

	dto "github.com/prometheus/client_model/go"
)

// Tiers at which a lookup of an object may be resolved.
const (
	lookupTierUnsaved = "unsaved"
	lookupTierSaved   = "saved"
	lookupTierDisk    = "disk"
	lookupTierMiss    = "miss"
)

var lookupTiers = []string{lookupTierUnsaved, lookupTierSaved, lookupTierDisk, lookupTierMiss}

const (
	flushOutcomeSucceeded = "succeeded"
	flushOutcomeFailed    = "failed"
	flushOutcomeSkipped   = "skipped"
)

var flushOutcomes = []string{flushOutcomeSucceeded, flushOutcomeFailed, flushOutcomeSkipped}

// Actions that may be taken by the recovery engine.
const (
	recoveryActionMapFileLoaded        = "map_file_loaded"
	recoveryActionMapFileRejected      = "map_file_rejected"
	recoveryActionMapEntryDropped      = "map_entry_dropped"
	recoveryActionIndexFileLoaded      = "index_file_loaded"
	recoveryActionIndexFileRejected    = "index_file_rejected"
	recoveryActionIndexFileOrphaned    = "index_file_orphaned"
	recoveryActionIndexRebuilt         = "index_rebuilt"
	recoveryActionIndexPersisted       = "index_persisted"
	recoveryActionRegionSkipped        = "region_skipped"
	recoveryActionRecursiveLoad        = "recursive_load"
	recoveryActionLocationDropped      = "location_dropped"
	recoveryActionTemporaryFileRemoved = "temporary_file_removed"
)

var recoveryActions = []string{
	recoveryActionMapFileLoaded,
	recoveryActionMapFileRejected,
	recoveryActionMapEntryDropped,
	recoveryActionIndexFileLoaded,
	recoveryActionIndexFileRejected,
	recoveryActionIndexFileOrphaned,
	recoveryActionIndexRebuilt,
	recoveryActionIndexPersisted,
	recoveryActionRegionSkipped,
	recoveryActionRecursiveLoad,
	recoveryActionLocationDropped,
	recoveryActionTemporaryFileRemoved,
}

// performanceCounters are owned by a single OnDiskCompilerStore.
// Unlike most metrics, they are not registered globally, as their
// values are also reported through GetPerformanceStats(), which needs
// to be specific to a single instance. OnDiskCompilerStore implements
// prometheus.Collector, so that callers may register it if desired.
type performanceCounters struct {
	lookups          *prometheus.CounterVec
	diskReadFailures prometheus.Counter
	bytesRead        prometheus.Counter
	bytesWritten     prometheus.Counter
	flushes          *prometheus.CounterVec
	recoveryActions  *prometheus.CounterVec
}

func newPerformanceCounters(basePath string) *performanceCounters {
	constLabels := prometheus.Labels{"base_path": basePath}
	pc := &performanceCounters{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "buildbarn",
				Subsystem:   "compiler_store",
				Name:        "lookups_total",
				Help:        "Number of object lookups, by the tier at which they were resolved",
				ConstLabels: constLabels,
			},
			[]string{"tier"}),
		diskReadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "buildbarn",
				Subsystem:   "compiler_store",
				Name:        "disk_read_failures_total",
				Help:        "Number of objects that could not be read back from a data file, causing their location to be discarded",
				ConstLabels: constLabels,
			}),
		bytesRead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "buildbarn",
				Subsystem:   "compiler_store",
				Name:        "read_bytes_total",
				Help:        "Number of bytes of object records read from data files",
				ConstLabels: constLabels,
			}),
		bytesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "buildbarn",
				Subsystem:   "compiler_store",
				Name:        "written_bytes_total",
				Help:        "Number of bytes written to data, index and map files",
				ConstLabels: constLabels,
			}),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "buildbarn",
				Subsystem:   "compiler_store",
				Name:        "flushes_total",
				Help:        "Number of calls to FlushToDisk(), by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"}),
		recoveryActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "buildbarn",
				Subsystem:   "compiler_store",
				Name:        "recovery_actions_total",
				Help:        "Number of actions taken while recovering the state of the store from disk",
				ConstLabels: constLabels,
			},
			[]string{"action"}),
	}

	// Initialize all label values, so that they are reported even
	// if zero.
	for _, tier := range lookupTiers {
		pc.lookups.WithLabelValues(tier)
	}
	for _, outcome := range flushOutcomes {
		pc.flushes.WithLabelValues(outcome)
	}
	for _, action := range recoveryActions {
		pc.recoveryActions.WithLabelValues(action)
	}
	return pc
}

func (pc *performanceCounters) lookup(tier string) {
	pc.lookups.WithLabelValues(tier).Inc()
}

func (pc *performanceCounters) flush(outcome string) {
	pc.flushes.WithLabelValues(outcome).Inc()
}

func (pc *performanceCounters) recoveryAction(action string, count int) {
	pc.recoveryActions.WithLabelValues(action).Add(float64(count))
}

func (pc *performanceCounters) describe(ch chan<- *prometheus.Desc) {
	pc.lookups.Describe(ch)
	pc.diskReadFailures.Describe(ch)
	pc.bytesRead.Describe(ch)
	pc.bytesWritten.Describe(ch)
	pc.flushes.Describe(ch)
	pc.recoveryActions.Describe(ch)
}

func (pc *performanceCounters) collect(ch chan<- prometheus.Metric) {
	pc.lookups.Collect(ch)
	pc.diskReadFailures.Collect(ch)
	pc.bytesRead.Collect(ch)
	pc.bytesWritten.Collect(ch)
	pc.flushes.Collect(ch)
	pc.recoveryActions.Collect(ch)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func writeCounterVec(sb *strings.Builder, title string, vec *prometheus.CounterVec, labelValues []string) {
	fmt.Fprintf(sb, "%s:", title)
	for _, v := range labelValues {
		fmt.Fprintf(sb, " %s=%.0f", v, counterValue(vec.WithLabelValues(v)))
	}
	sb.WriteByte('\n')
}

// String renders the current values of all counters in a form that is
// suitable for human consumption.
func (pc *performanceCounters) String() string {
	var sb strings.Builder
	writeCounterVec(&sb, "Lookups", pc.lookups, lookupTiers)
	fmt.Fprintf(&sb, "Disk read failures: %.0f\n", counterValue(pc.diskReadFailures))
	fmt.Fprintf(
		&sb,
		"Bytes read: %s, bytes written: %s\n",
		units.HumanSize(counterValue(pc.bytesRead)),
		units.HumanSize(counterValue(pc.bytesWritten)))
	writeCounterVec(&sb, "Flushes", pc.flushes, flushOutcomes)
	writeCounterVec(&sb, "Recovery actions", pc.recoveryActions, recoveryActions)
	return sb.String()
}
