package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tum-esm/em27-metadata/internal/metadata"
	"github.com/tum-esm/em27-metadata/internal/store"
)

// Server answers metadata queries over HTTP. The metadata store is swapped
// atomically by Set, so a reload never blocks readers.
type Server struct {
	current atomic.Pointer[metadata.Metadata]
	archive *store.Store
	port    string
	started time.Time
}

// NewServer creates a server for md. archive may be nil.
func NewServer(md *metadata.Metadata, archive *store.Store, port string) *Server {
	s := &Server{archive: archive, port: port, started: time.Now()}
	if md != nil {
		s.current.Store(md)
	}
	return s
}

// Set publishes a new metadata store.
func (s *Server) Set(md *metadata.Metadata) {
	s.current.Store(md)
}

func (s *Server) Metadata() *metadata.Metadata {
	return s.current.Load()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/locations", s.handleAPILocations)
	mux.HandleFunc("GET /api/locations/{id}", s.handleAPILocation)
	mux.HandleFunc("GET /api/sensors", s.handleAPISensors)
	mux.HandleFunc("GET /api/sensors/{id}", s.handleAPISensor)
	mux.HandleFunc("GET /api/sensors/{id}/contexts", s.handleAPIContexts)
	mux.HandleFunc("GET /api/sensors/{id}/setups", s.handleAPISetups)
	mux.HandleFunc("GET /api/campaigns", s.handleAPICampaigns)
	mux.HandleFunc("GET /api/campaigns/{id}", s.handleAPICampaign)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status    string         `json:"status"`
	Locations int            `json:"locations"`
	Sensors   int            `json:"sensors"`
	Campaigns int            `json:"campaigns"`
	Uptime    string         `json:"uptime"`
	Fetches   []FetchHealth  `json:"fetches,omitempty"`
	Archive   *ArchiveHealth `json:"archive,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
}

type FetchHealth struct {
	Date      string `json:"date"`
	Source    string `json:"source"`
	Runs      int    `json:"runs"`
	Failed    int    `json:"failed"`
	Fallbacks int64  `json:"fallbacks"`
}

type ArchiveHealth struct {
	Documents int        `json:"documents"`
	SizeBytes int64      `json:"size_bytes"`
	Newest    *time.Time `json:"newest_fetched_at,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}

	md := s.Metadata()
	if md == nil {
		health.Status = "loading"
	} else {
		health.Locations = len(md.Locations())
		health.Sensors = len(md.SensorIDs())
		health.Campaigns = len(md.Campaigns())
	}

	if s.archive != nil {
		runs, err := s.archive.GetFetchHealth(1)
		if err != nil {
			health.Errors = append(health.Errors, "fetch health: "+err.Error())
		}
		for _, run := range runs {
			health.Fetches = append(health.Fetches, FetchHealth{
				Date:      run.Date,
				Source:    run.Source,
				Runs:      run.TotalRuns,
				Failed:    run.FailedRuns,
				Fallbacks: run.Fallbacks,
			})
			if run.FailedRuns > 0 && health.Status == "ok" {
				health.Status = "degraded"
			}
		}

		stats, err := s.archive.DocumentStats()
		if err != nil {
			health.Errors = append(health.Errors, "archive: "+err.Error())
		} else {
			health.Archive = &ArchiveHealth{Documents: stats.TotalCount, SizeBytes: stats.TotalSizeBytes}
			if !stats.NewestFetchedAt.IsZero() {
				health.Archive.Newest = &stats.NewestFetchedAt
			}
		}
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "loading" || health.Status == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}
