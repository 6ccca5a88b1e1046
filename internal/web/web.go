// Package web serves generated calendar feeds and a small JSON API over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ttcal/internal/batch"
	"ttcal/internal/config"
	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
)

// Catalog holds the latest conversion reports, keyed by feed name (the
// output file's base name without extension).
type Catalog struct {
	mu        sync.RWMutex
	feeds     map[string]batch.Report
	updatedAt time.Time
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{feeds: make(map[string]batch.Report)}
}

// Update replaces the catalog contents with reports. Failed files keep their
// previous document so a transient read error does not take a feed offline.
func (c *Catalog) Update(reports []batch.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]batch.Report, len(reports))
	for _, rep := range reports {
		name := FeedName(rep.Output)
		if !rep.OK() {
			if prev, ok := c.feeds[name]; ok && prev.Document != nil {
				prev.Err = rep.Err
				next[name] = prev
				continue
			}
		}
		next[name] = rep
	}
	c.feeds = next
	c.updatedAt = time.Now()
}

// Get returns the report for a feed name.
func (c *Catalog) Get(name string) (batch.Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rep, ok := c.feeds[name]
	return rep, ok
}

// Names returns the feed names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.feeds))
	for name := range c.feeds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// UpdatedAt returns the time of the last Update.
func (c *Catalog) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// FeedName derives the feed name from an output path.
func FeedName(output string) string {
	base := filepath.Base(output)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Server provides HTTP access to the generated calendar feeds.
type Server struct {
	cfg     *config.Config
	catalog *Catalog
	mux     *http.ServeMux

	// In-memory cache for /api/occurrences responses, keyed by feed name.
	occMu    sync.RWMutex
	occCache map[string]*occurrencesCache
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, catalog *Catalog) *Server {
	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		mux:      http.NewServeMux(),
		occCache: make(map[string]*occurrencesCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="ttcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/feeds", s.handleFeeds)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /feeds/{file}", s.handleFeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// feedDTO is the JSON shape of one entry in /api/feeds.
type feedDTO struct {
	Name      string        `json:"name"`
	Input     string        `json:"input"`
	URL       string        `json:"url,omitempty"`
	Events    int           `json:"events"`
	RowErrors []rowErrorDTO `json:"row_errors,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type rowErrorDTO struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type feedsResponse struct {
	Feeds     []feedDTO `json:"feeds"`
	UpdatedAt time.Time `json:"updated_at"`
	TimeZone  string    `json:"timezone"`
}

// handleFeeds lists every known feed with its conversion outcome.
func (s *Server) handleFeeds(w http.ResponseWriter, _ *http.Request) {
	resp := feedsResponse{
		Feeds:     []feedDTO{},
		UpdatedAt: s.catalog.UpdatedAt(),
		TimeZone:  s.cfg.Timezone,
	}
	for _, name := range s.catalog.Names() {
		rep, _ := s.catalog.Get(name)
		dto := feedDTO{
			Name:   name,
			Input:  filepath.Base(rep.Input),
			Events: len(rep.Descriptors),
		}
		if rep.Document != nil {
			dto.URL = "/feeds/" + name + s.cfg.OutputExt
		}
		if rep.Err != nil {
			dto.Error = rep.Err.Error()
		}
		for _, re := range rep.RowErrors {
			dto.RowErrors = append(dto.RowErrors, rowErrorDTO{Row: re.Index, Error: re.Err.Error()})
		}
		resp.Feeds = append(resp.Feeds, dto)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFeed serves one generated calendar document.
//
// GET /feeds/{name}.ics
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if !strings.HasSuffix(file, s.cfg.OutputExt) {
		http.NotFound(w, r)
		return
	}
	rep, ok := s.catalog.Get(strings.TrimSuffix(file, s.cfg.OutputExt))
	if !ok || rep.Document == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+file+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rep.Document)
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	Feed            string          `json:"feed"`
	Occurrences     []occurrenceDTO `json:"occurrences"`
	TruncatedUIDs   []string        `json:"truncated_uids,omitempty"`
	DisplayTimeZone string          `json:"display_timezone"`
}

// occurrencesCache holds a cached /api/occurrences response for the catalog
// generation it was computed from.
type occurrencesCache struct {
	resp      occurrencesResponse
	updatedAt time.Time
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	UID      string    `json:"uid"`
	Summary  string    `json:"summary"`
	Location string    `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// handleOccurrences returns the concrete meetings of one feed.
//
// GET /api/occurrences?feed=semester1&max=500
//   - feed: feed name (required)
//   - max:  per-event occurrence cap (default 5000)
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("feed")
	if name == "" {
		writeError(w, http.StatusBadRequest, "feed is required")
		return
	}
	limit := parseIntDefault(q.Get("max"), 0)

	rep, ok := s.catalog.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown feed")
		return
	}

	// Cached responses stay valid until the catalog is refreshed.
	generation := s.catalog.UpdatedAt()
	s.occMu.RLock()
	oc := s.occCache[name]
	s.occMu.RUnlock()
	if oc != nil && limit == 0 && oc.updatedAt.Equal(generation) {
		writeJSON(w, http.StatusOK, oc.resp)
		return
	}

	loc := resolveLocationOrLocal(s.cfg.Timezone)
	res, err := ics.ExpandOccurrences(rep.Descriptors, ics.ExpandConfig{MaxOccurrencesPerEvent: limit})
	if err != nil {
		appLog.Error("api occurrences: expand failed", err, "feed", name)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	dtos := make([]occurrenceDTO, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			UID:      occ.UID,
			Summary:  occ.Summary,
			Location: occ.Location,
			Start:    occ.Start.In(loc),
			End:      occ.End.In(loc),
		})
	}
	resp := occurrencesResponse{
		Feed:            name,
		Occurrences:     dtos,
		TruncatedUIDs:   res.TruncatedEvents,
		DisplayTimeZone: loc.String(),
	}

	if limit == 0 {
		s.occMu.Lock()
		s.occCache[name] = &occurrencesCache{resp: resp, updatedAt: generation}
		s.occMu.Unlock()
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
