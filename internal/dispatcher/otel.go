package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/lagcomp/internal/dispatcher"

type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

// setup creates the dispatcher's instruments on the global meter. depths is
// polled for the per-kind queue gauge.
func (in *instruments) setup(depths func() map[string]int) error {
	m := otel.Meter(instrumentationName)

	var err error
	in.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Trace events waiting in each queue"),
	)
	if err != nil {
		return fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for kind, n := range depths() {
			o.ObserveInt64(in.queueSize, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
		}
		return nil
	}, in.queueSize)
	if err != nil {
		return fmt.Errorf("registering queue callback: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&in.processed, "dispatcher.events.processed", "Trace events handed to a sink"},
		{&in.dropped, "dispatcher.events.dropped", "Trace events dropped because the queue was full"},
		{&in.failed, "dispatcher.events.failed", "Queued trace events the sink rejected"},
	}
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}
	return nil
}
