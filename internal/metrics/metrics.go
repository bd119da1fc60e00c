package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pixel_bridge"

// Conversion directions used as label values.
const (
	DirectionHostToDevice = "host_to_device"
	DirectionDeviceToHost = "device_to_host"
)

// Conversion results used as label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "endpoint_responses_total",
		Help:      "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	// Layout conversion metrics
	Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversions_total",
		Help:      "Total number of layout conversions by direction and result",
	}, []string{"direction", "result"})

	ConversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "conversion_duration_ms",
		Help:      "Duration of layout conversions in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16), // 50µs to ~1.6s
	}, []string{"direction"})

	ConversionPixels = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversion_pixels_total",
		Help:      "Total number of pixels moved by layout conversions",
	}, []string{"direction"})

	// Device memory metrics
	DeviceMemoryUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_memory_used_bytes",
		Help:      "Device memory currently held by live arrays in bytes",
	})

	DeviceAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_allocations_total",
		Help:      "Total number of device array allocations by backend and result",
	}, []string{"backend", "result"})
)
