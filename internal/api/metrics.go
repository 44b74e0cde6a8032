package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

// DBStatsSource exposes connection pool statistics. *database.DB satisfies it.
type DBStatsSource interface {
	Stats() sql.DBStats
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	WebSocket     WSMetrics          `json:"websocket"`
	Link          *LinkMetrics       `json:"link,omitempty"`
	Units         hvac.RegistryStats `json:"units"`
	Dispatch      hvac.DispatchStats `json:"dispatch"`
	Database      *DatabaseMetrics   `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// LinkMetrics contains controller link counters.
type LinkMetrics struct {
	Connected      bool   `json:"connected"`
	State          string `json:"state"`
	Polls          uint64 `json:"polls"`
	BlocksTimedOut uint64 `json:"blocks_timed_out"`
	Writes         uint64 `json:"writes"`
	WritesFailed   uint64 `json:"writes_failed"`
	Timeouts       uint64 `json:"timeouts"`
	DecodeErrors   uint64 `json:"decode_errors"`
	Reconnects     uint64 `json:"reconnects"`
	QueueDepth     int    `json:"queue_depth"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns process, link and unit metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.Hub().ClientCount(),
		},
		Units:    s.svc.Registry().Stats(),
		Dispatch: s.svc.DispatchStats(),
	}

	if s.controller != nil {
		ls := s.controller.Stats()
		metrics.Link = &LinkMetrics{
			Connected:      ls.Connected,
			State:          ls.State,
			Polls:          ls.PollsTotal,
			BlocksTimedOut: ls.BlocksTimedOut,
			Writes:         ls.WritesTotal,
			WritesFailed:   ls.WritesFailed,
			Timeouts:       ls.Timeouts,
			DecodeErrors:   ls.DecodeErrors,
			Reconnects:     ls.ReconnectsTotal,
			QueueDepth:     ls.QueueDepth,
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
