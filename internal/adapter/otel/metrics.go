package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "routegrid"

// Metrics holds all routegrid metric instruments.
type Metrics struct {
	TasksCreated  metric.Int64Counter
	TasksAssigned metric.Int64Counter
	TasksDone     metric.Int64Counter
	RouteTimeouts metric.Int64Counter
	WaitDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksCreated, err = meter.Int64Counter("routegrid.tasks.created",
		metric.WithDescription("Number of tasks created"))
	if err != nil {
		return nil, err
	}

	m.TasksAssigned, err = meter.Int64Counter("routegrid.tasks.assigned",
		metric.WithDescription("Number of task assignments"))
	if err != nil {
		return nil, err
	}

	m.TasksDone, err = meter.Int64Counter("routegrid.tasks.done",
		metric.WithDescription("Number of tasks reaching a terminal state"))
	if err != nil {
		return nil, err
	}

	m.RouteTimeouts, err = meter.Int64Counter("routegrid.routes.timeouts",
		metric.WithDescription("Number of route timeout advances"))
	if err != nil {
		return nil, err
	}

	m.WaitDuration, err = meter.Float64Histogram("routegrid.task.wait_seconds",
		metric.WithDescription("Time from task creation to assignment in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
