package lagcomp

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/OCAP2/lagcomp/internal/history"
)

const instrumentationName = "github.com/OCAP2/lagcomp/internal/lagcomp"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

type metrics struct {
	opened     metric.Int64Counter
	skipped    metric.Int64Counter
	backtracks metric.Int64Counter
	aborted    metric.Int64Counter
	restores   metric.Int64Counter
	samples    metric.Int64ObservableGauge
}

func newMetrics(store *history.Store) (*metrics, error) {
	m := meter()
	mt := &metrics{}

	var err error
	mt.opened, err = m.Int64Counter(
		"lagcomp.sessions.opened",
		metric.WithDescription("Compensation sessions that rewound the world"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	mt.skipped, err = m.Int64Counter(
		"lagcomp.sessions.skipped",
		metric.WithDescription("Open calls that did not start a session"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	mt.backtracks, err = m.Int64Counter(
		"lagcomp.backtracks",
		metric.WithDescription("Candidates processed by the backtrack resolver"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating backtracks counter: %w", err)
	}

	mt.aborted, err = m.Int64Counter(
		"lagcomp.backtracks.aborted",
		metric.WithDescription("Backtracks abandoned on unusable history"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating aborted counter: %w", err)
	}

	mt.restores, err = m.Int64Counter(
		"lagcomp.restores",
		metric.WithDescription("Fields put back at session close"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating restores counter: %w", err)
	}

	mt.samples, err = m.Int64ObservableGauge(
		"lagcomp.history.samples",
		metric.WithDescription("Samples currently held across all tracks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating samples gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			st := store.Stats()
			o.ObserveInt64(mt.samples, int64(st.Samples))
			return nil
		},
		mt.samples,
	)
	if err != nil {
		return nil, fmt.Errorf("registering samples callback: %w", err)
	}

	return mt, nil
}

func (m *metrics) skip(reason string) {
	m.skipped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) backtrack(result string) {
	m.backtracks.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *metrics) abort(reason string) {
	m.aborted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) restore(kind string) {
	m.restores.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *metrics) open() {
	m.opened.Add(context.Background(), 1)
}
