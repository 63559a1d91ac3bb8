// Package reportsrv implements the Reporting HTTP surface: a small
// read-only net/http API over the pending-album queue, the
// problematic-albums report, and the
// rate-limiter/cache counters that would otherwise only be visible in
// log output.
package reportsrv

import (
	"encoding/csv"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/justinas/alice"

	"github.com/sundial-audio/yearkeeper/cache"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/pending"
	"github.com/sundial-audio/yearkeeper/ratelimit"
)

// Server exposes the pending queue, problematic-albums report, and
// cache/rate-limiter counters over HTTP.
type Server struct {
	pending      *pending.Store
	limiters     map[string]*ratelimit.Limiter
	apiCache     *cache.APIResponseCache
	genericCache *cache.GenericCache
	logger       *log.Logger
}

// New builds a Server. limiters is keyed by provider name (e.g.
// "musicbrainz", "discogs") the way the API Orchestrator keeps its own
// limiter set; either cache may be nil if that tier isn't wired.
func New(pendingStore *pending.Store, limiters map[string]*ratelimit.Limiter, apiCache *cache.APIResponseCache, genericCache *cache.GenericCache) *Server {
	return &Server{
		pending:      pendingStore,
		limiters:     limiters,
		apiCache:     apiCache,
		genericCache: genericCache,
		logger:       log.New(os.Stdout, "reportsrv: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Handler builds the route table, wrapped in the
// recoverPanic/logRequest/commonHeaders middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /pending", s.handlePending)
	mux.HandleFunc("GET /pending/report", s.handlePendingReport)
	mux.HandleFunc("GET /stats", s.handleStats)

	standard := alice.New(s.recoverPanic, s.logRequest, commonHeaders)
	return standard.Then(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	if reason := r.URL.Query().Get("reason"); reason != "" {
		jsonResponse(w, http.StatusOK, map[string]any{
			"albums": s.pending.GetPendingAlbumsByReason(models.PendingReason(reason)),
		})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"albums": s.pending.GetAllPendingAlbums()})
}

// handlePendingReport streams the problematic-albums CSV directly,
// filtered by the same min_attempts threshold
// GenerateProblematicAlbumsReport would apply to a file.
func (s *Server) handlePendingReport(w http.ResponseWriter, r *http.Request) {
	minAttempts := 0
	if raw := r.URL.Query().Get("min_attempts"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			jsonError(w, "min_attempts must be an integer", http.StatusBadRequest)
			return
		}
		minAttempts = n
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="problematic_albums.csv"`)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"artist", "album", "reason", "attempt_count", "timestamp"}); err != nil {
		s.logger.Printf("writing report header: %v", err)
		return
	}
	for _, e := range s.pending.GetAllPendingAlbums() {
		if e.AttemptCount < minAttempts {
			continue
		}
		row := []string{
			e.Artist, e.Album, string(e.Reason),
			strconv.Itoa(e.AttemptCount),
			time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			s.logger.Printf("writing report row: %v", err)
			return
		}
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	limiterStats := make(map[string]ratelimit.Stats, len(s.limiters))
	for name, l := range s.limiters {
		limiterStats[name] = l.Stats()
	}

	body := map[string]any{"rate_limiters": limiterStats}
	if s.apiCache != nil {
		body["api_response_cache"] = s.apiCache.Stats()
	}
	if s.genericCache != nil {
		body["generic_cache"] = s.genericCache.Stats()
	}
	jsonResponse(w, http.StatusOK, body)
}

// jsonResponse writes data as a JSON response with the given status.
func jsonResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("reportsrv: error encoding JSON response: %v", err)
		}
	}
}

// jsonError writes a JSON error body.
func jsonError(w http.ResponseWriter, message string, statusCode int) {
	jsonResponse(w, statusCode, map[string]string{"error": message})
}

// recoverPanic turns a panic anywhere downstream into a 500 instead of
// taking the whole process down (the batch processor applies the same
// policy per-goroutine; here it's per-request).
func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				s.logger.Printf("panic recovered: %v\n%s", err, debug.Stack())
				jsonError(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// logRequest logs every request's method, URI, and remote address.
func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Printf("%s - %s %s %s", r.RemoteAddr, r.Proto, r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

// commonHeaders sets a conservative baseline of security headers; this
// is a read-only reporting API with no HTML surface, so the policy is
// short.
func commonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "deny")
		next.ServeHTTP(w, r)
	})
}
