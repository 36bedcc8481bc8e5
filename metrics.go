package mqtt311

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Value returns the current value.
	Value() float64
}

// Standard metric names for the client engine.
const (
	// MetricPacketsSent counts outbound packets, labelled by type.
	MetricPacketsSent = "mqtt_packets_sent"

	// MetricPacketsReceived counts inbound packets, labelled by type.
	MetricPacketsReceived = "mqtt_packets_received"

	// MetricBytesSent counts outbound bytes.
	MetricBytesSent = "mqtt_bytes_sent"

	// MetricBytesReceived counts inbound bytes.
	MetricBytesReceived = "mqtt_bytes_received"

	// MetricMessagesDelivered counts messages handed to listeners.
	MetricMessagesDelivered = "mqtt_messages_delivered"

	// MetricFlowsStarted counts registered flows.
	MetricFlowsStarted = "mqtt_flows_started"

	// MetricFlowsFailed counts flows that ended in error.
	MetricFlowsFailed = "mqtt_flows_failed"

	// MetricReconnectAttempts counts reconnection attempts.
	MetricReconnectAttempts = "mqtt_reconnect_attempts"

	// MetricConnected is 1 while a session is ready.
	MetricConnected = "mqtt_connected"

	// MetricActiveFlows is the number of flows awaiting packets.
	MetricActiveFlows = "mqtt_active_flows"
)

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return &noOpCounter{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return &noOpGauge{}
}

type noOpCounter struct{}

func (n *noOpCounter) Inc()           {}
func (n *noOpCounter) Add(_ float64)  {}
func (n *noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64)  {}
func (n *noOpGauge) Inc()           {}
func (n *noOpGauge) Dec()           {}
func (n *noOpGauge) Value() float64 { return 0 }
