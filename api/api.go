package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"logwarden/config"
	"logwarden/metrics"
	"logwarden/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateLimiterEntry holds a per-IP limiter with its last seen time, so idle
// entries can be evicted.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API is the HTTP server: routing, middleware and the live WebSocket hub.
type API struct {
	router         *mux.Router
	server         *http.Server
	logs           *service.LogService
	rules          *service.RuleService
	hub            *Hub
	health         HealthReporter
	config         *config.Config
	logger         *zap.SugaredLogger
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
}

// HealthReporter exposes runtime health details for the health endpoint.
type HealthReporter interface {
	QueueLen() int
}

// NewAPI creates the API server and registers all routes.
func NewAPI(logs *service.LogService, rules *service.RuleService, hub *Hub, health HealthReporter, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:       mux.NewRouter(),
		logs:         logs,
		rules:        rules,
		hub:          hub,
		health:       health,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	go a.cleanupRateLimiters()
	return a
}

func (a *API) setupRoutes() {
	a.router.Use(a.loggingMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/api/logs", a.ingestLog).Methods("POST")
	a.router.HandleFunc("/api/logs", a.listLogs).Methods("GET")
	a.router.HandleFunc("/api/logs/search", a.searchLogs).Methods("POST")
	a.router.HandleFunc("/api/logs/export", a.exportLogs).Methods("GET")
	a.router.HandleFunc("/api/logs/stats", a.logStats).Methods("GET")
	a.router.HandleFunc("/api/logs/trends", a.logTrends).Methods("GET")
	a.router.HandleFunc("/api/logs/correlate/{id}", a.correlationTimeline).Methods("GET")

	a.router.HandleFunc("/api/security-events", a.listSecurityEvents).Methods("GET")
	a.router.HandleFunc("/api/security-events/{id}/resolve", a.resolveSecurityEvent).Methods("POST")

	a.router.HandleFunc("/api/alert-rules", a.listAlertRules).Methods("GET")
	a.router.HandleFunc("/api/alert-rules", a.createAlertRule).Methods("POST")
	a.router.HandleFunc("/api/alert-rules/{id}", a.getAlertRule).Methods("GET")
	a.router.HandleFunc("/api/alert-rules/{id}", a.updateAlertRule).Methods("PUT")
	a.router.HandleFunc("/api/alert-rules/{id}", a.deleteAlertRule).Methods("DELETE")
	a.router.HandleFunc("/api/alert-rules/{id}/test", a.testAlertRule).Methods("POST")

	a.router.HandleFunc("/api/channels", a.listChannels).Methods("GET")
	a.router.HandleFunc("/api/channels", a.createChannel).Methods("POST")
	a.router.HandleFunc("/api/channels/{id}", a.getChannel).Methods("GET")
	a.router.HandleFunc("/api/channels/{id}", a.updateChannel).Methods("PUT")
	a.router.HandleFunc("/api/channels/{id}", a.deleteChannel).Methods("DELETE")

	a.router.HandleFunc("/api/threat-rules", a.listThreatRules).Methods("GET")

	a.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(a.hub, a.logger, w, r)
	})

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

// loggingMiddleware logs each request at debug level.
func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debugw("HTTP request",
			"method", r.Method, "path", r.URL.Path,
			"remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimitMiddleware applies a per-IP token bucket. The metrics and health
// endpoints are exempt so scrapers never compete with API traffic.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		a.rateLimitersMu.Lock()
		entry, ok := a.rateLimiters[ip]
		if !ok {
			entry = &rateLimiterEntry{
				limiter: rate.NewLimiter(rate.Limit(a.config.Server.RateLimitRPS), a.config.Server.RateBurst),
			}
			a.rateLimiters[ip] = entry
		}
		entry.lastSeen = time.Now()
		allowed := entry.limiter.Allow()
		a.rateLimitersMu.Unlock()

		if !allowed {
			metrics.HTTPRequestsRejected.Inc()
			http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cleanupRateLimiters evicts limiters for IPs idle longer than ten minutes.
func (a *API) cleanupRateLimiters() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			a.rateLimitersMu.Lock()
			for ip, entry := range a.rateLimiters {
				if entry.lastSeen.Before(cutoff) {
					delete(a.rateLimiters, ip)
				}
			}
			a.rateLimitersMu.Unlock()
		case <-a.stopCh:
			return
		}
	}
}

// Router returns the configured router, for tests.
func (a *API) Router() http.Handler {
	return a.router
}

// Start begins serving on addr. Blocks until the server exits.
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Infow("HTTP server listening", "addr", addr)
	return a.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (a *API) Stop(ctx context.Context) error {
	close(a.stopCh)
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
