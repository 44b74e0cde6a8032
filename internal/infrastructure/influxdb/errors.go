package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrConnectionFailed wraps the ping failure seen by Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck on a closed or zero Client.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps batch write failures delivered to SetOnError.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
