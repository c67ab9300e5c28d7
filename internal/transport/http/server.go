package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	feedService "github.com/reshetovitsme/rss-fanout-bot/internal/modules/feed/service"
	subscriptionService "github.com/reshetovitsme/rss-fanout-bot/internal/modules/subscription/service"
	"github.com/reshetovitsme/rss-fanout-bot/internal/shared/config"
	sloghttp "github.com/samber/slog-http"
)

// Server exposes health, feed status and outbound RSS over HTTP
type Server struct {
	cfg         *config.Config
	registry    *subscriptionService.Service
	feedService *feedService.Service
	logger      *slog.Logger
}

// New creates a new HTTP server
func New(cfg *config.Config, registry *subscriptionService.Service, feedService *feedService.Service) *Server {
	return &Server{
		cfg:         cfg,
		registry:    registry,
		feedService: feedService,
		logger:      slog.Default(),
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Outbound RSS of what a destination recently received
	mux.HandleFunc("GET /rss/{destinationID}", s.handleRSSFeed)

	// Tracked feed snapshot
	mux.HandleFunc("GET /feeds", s.handleFeeds)

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)

	addr := fmt.Sprintf(":%s", s.cfg.HTTPPort)
	s.logger.Info("HTTP server starting", "addr", addr)

	// Use slog-http middleware with recovery
	handler := sloghttp.Recovery(mux)
	handler = sloghttp.New(s.logger)(handler)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (s *Server) handleRSSFeed(w http.ResponseWriter, r *http.Request) {
	destinationID := r.PathValue("destinationID")
	if destinationID == "" {
		http.Error(w, "Destination ID is required", http.StatusBadRequest)
		return
	}

	// Get base URL from request
	baseURL := fmt.Sprintf("%s://%s", getScheme(r), r.Host)

	feed, err := s.feedService.GenerateFeed(destinationID, baseURL)
	if err != nil {
		s.logger.Error("Error generating feed", "destination_id", destinationID, "error", err)
		http.Error(w, "Failed to generate feed", http.StatusNotFound)
		return
	}

	rss, err := feed.ToRss()
	if err != nil {
		s.logger.Error("Error converting feed to RSS", "error", err)
		http.Error(w, "Failed to generate RSS", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300") // Cache for 5 minutes
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rss))
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(s.registry.Feeds()); err != nil {
		s.logger.Error("Error encoding feed snapshot", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
