// Package observe provides application-wide observability primitives for
// Yggdrasil: OpenTelemetry metrics, tracing, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Yggdrasil metrics.
const meterName = "github.com/jwhector/yggdrasil"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CommandDuration tracks conductor dispatch latency. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	CommandDuration metric.Float64Histogram

	// BroadcastDuration tracks the per-command state_sync fan-out.
	BroadcastDuration metric.Float64Histogram

	// SnapshotDuration tracks persistence snapshot writes.
	SnapshotDuration metric.Float64Histogram

	// --- Counters ---

	// CommandsProcessed counts conductor commands. Use with attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	CommandsProcessed metric.Int64Counter

	// VotesReceived counts accepted votes by faction.
	VotesReceived metric.Int64Counter

	// CoupVotesReceived counts accepted coup votes by faction.
	CoupVotesReceived metric.Int64Counter

	// BackupsWritten counts backup files by reason (phase, periodic, shutdown).
	BackupsWritten metric.Int64Counter

	// OSCSent counts datagrams sent to the DAW by address.
	OSCSent metric.Int64Counter

	// OSCReceived counts datagrams received from the DAW by address.
	OSCReceived metric.Int64Counter

	// --- Error counters ---

	// PersistenceErrors counts failed snapshot or aux-table writes.
	PersistenceErrors metric.Int64Counter

	// TransportErrors counts dropped client writes by role.
	TransportErrors metric.Int64Counter

	// --- Gauges (UpDownCounters) ---

	// ConnectedClients tracks live sockets by role.
	ConnectedClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for show-control latencies: command dispatch is sub-millisecond, fan-out
// and disk writes sit in the low milliseconds.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CommandDuration, err = m.Float64Histogram("yggdrasil.command.duration",
		metric.WithDescription("Latency of conductor command dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BroadcastDuration, err = m.Float64Histogram("yggdrasil.broadcast.duration",
		metric.WithDescription("Latency of the per-command state_sync fan-out."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SnapshotDuration, err = m.Float64Histogram("yggdrasil.snapshot.duration",
		metric.WithDescription("Latency of persistence snapshot writes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CommandsProcessed, err = m.Int64Counter("yggdrasil.commands.processed",
		metric.WithDescription("Total conductor commands by type and status."),
	); err != nil {
		return nil, err
	}
	if met.VotesReceived, err = m.Int64Counter("yggdrasil.votes.received",
		metric.WithDescription("Total accepted votes by faction."),
	); err != nil {
		return nil, err
	}
	if met.CoupVotesReceived, err = m.Int64Counter("yggdrasil.coup_votes.received",
		metric.WithDescription("Total accepted coup votes by faction."),
	); err != nil {
		return nil, err
	}
	if met.BackupsWritten, err = m.Int64Counter("yggdrasil.backups.written",
		metric.WithDescription("Total backup files written by reason."),
	); err != nil {
		return nil, err
	}
	if met.OSCSent, err = m.Int64Counter("yggdrasil.osc.sent",
		metric.WithDescription("Total datagrams sent to the DAW by address."),
	); err != nil {
		return nil, err
	}
	if met.OSCReceived, err = m.Int64Counter("yggdrasil.osc.received",
		metric.WithDescription("Total datagrams received from the DAW by address."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PersistenceErrors, err = m.Int64Counter("yggdrasil.persistence.errors",
		metric.WithDescription("Total failed persistence writes."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("yggdrasil.transport.errors",
		metric.WithDescription("Total dropped client writes by role."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ConnectedClients, err = m.Int64UpDownCounter("yggdrasil.clients.connected",
		metric.WithDescription("Number of currently connected client sockets by role."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("yggdrasil.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordVote records an accepted vote counter increment.
func (m *Metrics) RecordVote(ctx context.Context, faction int) {
	m.VotesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.Int("faction", faction)),
	)
}

// RecordCoupVote records an accepted coup vote counter increment.
func (m *Metrics) RecordCoupVote(ctx context.Context, faction int) {
	m.CoupVotesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.Int("faction", faction)),
	)
}

// RecordOSCSent records a sent datagram counter increment.
func (m *Metrics) RecordOSCSent(ctx context.Context, address string) {
	m.OSCSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("address", address)),
	)
}
