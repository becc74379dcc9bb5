// Package observe provides OpenTelemetry metrics for the narrator.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs an SDK meter provider bridged to Prometheus so the dashboard can
// serve /metrics. Tests should use [NewMetrics] with a meter provider backed
// by a ManualReader.
//
// All Record methods are safe on a nil *Metrics, so components can treat
// metrics as optional.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all narrator metrics.
const meterName = "github.com/teslashibe/go-narrator"

// Metrics holds all metric instruments for the narrator.
type Metrics struct {
	meter metric.Meter

	// Frames counts processed frames. Use with attribute status=ok|skipped.
	Frames metric.Int64Counter

	// Detections counts detections handed to the presence tracker.
	Detections metric.Int64Counter

	// NewlyPresent counts identity keys reported as newly present.
	NewlyPresent metric.Int64Counter

	// Announcements counts messages accepted by the speech sink.
	Announcements metric.Int64Counter

	// Deferrals counts flush attempts deferred by backpressure.
	Deferrals metric.Int64Counter

	// SpeechFailures counts synthesis or playback failures.
	// Use with attribute stage=synthesize|play.
	SpeechFailures metric.Int64Counter

	// SpeechDuration tracks how long synthesis plus playback takes.
	SpeechDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// speech latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.Frames, err = m.Int64Counter("narrator.frames",
		metric.WithDescription("Frames processed by the narrator loop."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("narrator.detections",
		metric.WithDescription("Detections handed to the presence tracker."),
	); err != nil {
		return nil, err
	}
	if met.NewlyPresent, err = m.Int64Counter("narrator.presence.newly_present",
		metric.WithDescription("Identity keys that appeared or reappeared."),
	); err != nil {
		return nil, err
	}
	if met.Announcements, err = m.Int64Counter("narrator.announce.emitted",
		metric.WithDescription("Announcements accepted by the speech sink."),
	); err != nil {
		return nil, err
	}
	if met.Deferrals, err = m.Int64Counter("narrator.announce.deferred",
		metric.WithDescription("Flush attempts deferred because the speech queue was full."),
	); err != nil {
		return nil, err
	}
	if met.SpeechFailures, err = m.Int64Counter("narrator.speech.failures",
		metric.WithDescription("Speech synthesis or playback failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("narrator.speech.duration",
		metric.WithDescription("Time to synthesize and play one announcement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveQueueDepth registers an observable gauge reporting depth().
func (m *Metrics) ObserveQueueDepth(depth func() int) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge("narrator.speech.queue_depth",
		metric.WithDescription("Messages waiting in the speech queue."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(depth()))
			return nil
		}),
	)
	return err
}

// RecordFrame records one processed or skipped frame.
func (m *Metrics) RecordFrame(ctx context.Context, skipped bool) {
	if m == nil {
		return
	}
	status := "ok"
	if skipped {
		status = "skipped"
	}
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDetections records the detections and newly present keys of a frame.
func (m *Metrics) RecordDetections(ctx context.Context, detections, newly int) {
	if m == nil {
		return
	}
	m.Detections.Add(ctx, int64(detections))
	m.NewlyPresent.Add(ctx, int64(newly))
}

// RecordAnnouncement records an accepted announcement of n keys.
func (m *Metrics) RecordAnnouncement(ctx context.Context, keys int) {
	if m == nil {
		return
	}
	m.Announcements.Add(ctx, 1, metric.WithAttributes(attribute.Int("keys", keys)))
}

// RecordDeferral records a backpressure deferral.
func (m *Metrics) RecordDeferral(ctx context.Context) {
	if m == nil {
		return
	}
	m.Deferrals.Add(ctx, 1)
}

// RecordSpeechFailure records a failure at the given stage.
func (m *Metrics) RecordSpeechFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.SpeechFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordSpeechDuration records the time spent speaking one message.
func (m *Metrics) RecordSpeechDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.SpeechDuration.Record(ctx, d.Seconds())
}
