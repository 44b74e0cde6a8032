package influxdb

import (
	"errors"
	"testing"

	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/config"
)

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{"configured", config.InfluxDBConfig{BatchSize: 500, FlushInterval: 2}, 500, 2000},
		{"defaults", config.InfluxDBConfig{}, defaultBatchSize, defaultFlushInterval * 1000},
		{"negative", config.InfluxDBConfig{BatchSize: -1, FlushInterval: -5}, defaultBatchSize, defaultFlushInterval * 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(tt.cfg)
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlush {
				t.Errorf("FlushInterval() = %d, want %d", got, tt.wantFlush)
			}
		})
	}
}

func TestForwardErrorsWrapsWriteFailure(t *testing.T) {
	c := &Client{}
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	cause := errors.New("bucket not found")
	errs <- cause
	close(errs)
	c.forwardErrors(errs)

	err := <-got
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, cause) {
		t.Errorf("callback error = %v, want ErrWriteFailed wrapping the cause", err)
	}
}
