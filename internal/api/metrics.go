package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"
)

// PoolStatsProvider exposes connection pool statistics. database.DB satisfies it.
type PoolStatsProvider interface {
	Stats() sql.DBStats
}

// SystemMetrics is the /api/v1/system response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     *WSMetrics       `json:"websocket,omitempty"`
	Bridge        *BridgeMetrics   `json:"bridge,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
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

// BridgeMetrics summarises the orchestrator counters.
type BridgeMetrics struct {
	State        string `json:"state"`
	Pulls        uint64 `json:"pulls"`
	PullFailures uint64 `json:"pull_failures"`
	Published    uint64 `json:"published"`
	Dropped      uint64 `json:"dropped"`
	Recoveries   uint64 `json:"recoveries"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystem returns runtime and component statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
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
	}

	if s.hub != nil {
		metrics.WebSocket = &WSMetrics{ConnectedClients: s.hub.ClientCount()}
	}

	if s.bridge != nil {
		st := s.bridge.Status()
		metrics.Bridge = &BridgeMetrics{
			State:        st.State,
			Pulls:        st.Pulls,
			PullFailures: st.PullFailures,
			Published:    st.Published,
			Dropped:      st.PublishDropped,
			Recoveries:   st.Recoveries,
		}
	}

	if s.pool != nil {
		dbStats := s.pool.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
