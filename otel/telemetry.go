package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/datateam2/eventstream"

// Telemetry holds the OpenTelemetry instruments used across the library.
// When no provider is configured every instrument is a noop.
type Telemetry struct {
	// Producer metrics
	EventsProduced metric.Int64Counter
	BatchesSent    metric.Int64Counter
	SendRetries    metric.Int64Counter

	// Consumer metrics
	EventsConsumed    metric.Int64Counter
	ProcessErrors     metric.Int64Counter
	CheckpointCommits metric.Int64Counter
	PartitionsActive  metric.Int64UpDownCounter

	// Coordinator metrics
	Rebalances metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance from the given provider,
// defaulted to a noop if nil.
func NewTelemetry(mp metric.MeterProvider) (*Telemetry, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter(scopeName)

	eventsProduced, err := meter.Int64Counter(
		"stream.producer.events",
		metric.WithDescription("Events accepted into the log"),
	)
	if err != nil {
		return nil, err
	}

	batchesSent, err := meter.Int64Counter(
		"stream.producer.batches",
		metric.WithDescription("Batches sent"),
	)
	if err != nil {
		return nil, err
	}

	sendRetries, err := meter.Int64Counter(
		"stream.producer.send_retries",
		metric.WithDescription("Batch send retries after transient failures"),
	)
	if err != nil {
		return nil, err
	}

	eventsConsumed, err := meter.Int64Counter(
		"stream.consumer.events",
		metric.WithDescription("Events delivered to processing functions"),
	)
	if err != nil {
		return nil, err
	}

	processErrors, err := meter.Int64Counter(
		"stream.consumer.process_errors",
		metric.WithDescription("Processing function failures"),
	)
	if err != nil {
		return nil, err
	}

	checkpointCommits, err := meter.Int64Counter(
		"stream.consumer.checkpoint_commits",
		metric.WithDescription("Checkpoint commits"),
	)
	if err != nil {
		return nil, err
	}

	partitionsActive, err := meter.Int64UpDownCounter(
		"stream.consumer.partitions_active",
		metric.WithDescription("Partitions currently owned and active"),
	)
	if err != nil {
		return nil, err
	}

	rebalances, err := meter.Int64Counter(
		"stream.coordinator.rebalances",
		metric.WithDescription("Group rebalances performed"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		EventsProduced:    eventsProduced,
		BatchesSent:       batchesSent,
		SendRetries:       sendRetries,
		EventsConsumed:    eventsConsumed,
		ProcessErrors:     processErrors,
		CheckpointCommits: checkpointCommits,
		PartitionsActive:  partitionsActive,
		Rebalances:        rebalances,
	}, nil
}

// Noop returns a Telemetry instance with all noop instruments.
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil)
	return t
}
