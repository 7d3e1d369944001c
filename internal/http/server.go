package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vortunix/noderegistry/internal/auth"
	"github.com/vortunix/noderegistry/internal/config"
	"github.com/vortunix/noderegistry/internal/model"
	"github.com/vortunix/noderegistry/internal/rate"
	"github.com/vortunix/noderegistry/internal/registry"
)

const maxBodyBytes = 5 << 20

type Server struct {
	registry  *registry.Service
	auth      *auth.Service
	limiter   rate.Limiter
	cfg       config.Config
	templates *Templates
	router    *gin.Engine
	log       *logrus.Entry
}

func NewServer(reg *registry.Service, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config) (*Server, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	s := &Server{
		registry:  reg,
		auth:      authSvc,
		limiter:   limiter,
		cfg:       cfg,
		templates: tmpl,
		log:       logrus.WithField("component", "http"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/", s.wrap(s.handleDecoy))
	r.GET("/healthz", s.wrap(s.handleHealth))
	r.GET("/dashboard", s.wrap(s.handleDashboard))

	api := r.Group("/api")
	api.GET("/verifikasi/:token", s.wrap(s.handleVerify))
	api.GET("/stats", s.wrap(s.handleStats))
	api.GET("/logs", s.wrap(s.handleLogs))
	api.GET("/list", s.wrap(s.handleList))
	api.POST("/sync", s.wrap(s.handleSync))
	api.POST("/login", s.wrap(s.handleLogin))

	r.NoRoute(s.wrap(s.handleStatic))
	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "registry_path_params"

// wrap adapts net/http handlers to gin, injecting path params into the
// request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

func (s *Server) handleDecoy(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := s.templates.NotFound.Execute(w, map[string]any{"Host": host}); err != nil {
		s.log.WithError(err).Error("render decoy page")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DashboardDir == "" {
		notFound(w)
		return
	}
	index := filepath.Join(s.cfg.DashboardDir, "index.html")
	if !isFile(index) {
		notFound(w)
		return
	}
	serveFile(w, r, index)
}

// handleStatic serves dashboard assets for paths no route claims.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DashboardDir == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		notFound(w)
		return
	}
	name := filepath.Join(s.cfg.DashboardDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if !isFile(name) {
		notFound(w)
		return
	}
	serveFile(w, r, name)
}

// serveFile writes name as is. http.ServeFile would redirect index.html
// requests to their directory.
func serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name)
	if err != nil {
		notFound(w)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		notFound(w)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handleVerify godoc
//
//	@Summary		Node check-in
//	@Description	Appends a log entry to the node holding token and returns its record
//	@Tags			Nodes
//	@Produce		json
//	@Param			token	path		string	true	"Node token"
//	@Success		200		{object}	map[string]any	"success plus the node record"
//	@Failure		404		{object}	map[string]any	"Invalid Node"
//	@Router			/api/verifikasi/{token} [get]
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	res, err := s.registry.CheckIn(r.Context(), token, clientIP(r))
	if err != nil {
		if errors.Is(err, registry.ErrNodeNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Invalid Node"})
			return
		}
		s.log.WithError(err).Warn("check-in failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
		return
	}

	fields, err := res.Bot.Fields()
	if err != nil {
		s.log.WithError(err).Warn("encode node record")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
		return
	}
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	if res.Persisted != nil {
		body["persisted"] = *res.Persisted
	}
	writeJSON(w, http.StatusOK, body)
}

// handleStats godoc
//
//	@Summary		Registry statistics
//	@Description	Counts of nodes per status; other counts unrecognised statuses
//	@Tags			Dashboard
//	@Produce		json
//	@Success		200	{object}	model.Stats
//	@Router			/api/stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("stats failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Stats fail"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.registry.RecentLogs(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("logs failed")
	}
	if logs == nil {
		logs = []model.AnnotatedLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry.List(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("list failed")
	}
	if reg == nil {
		reg = model.Registry{}
	}
	writeJSON(w, http.StatusOK, reg)
}

type syncRequest struct {
	NewList json.RawMessage `json:"newList"`
	Action  string          `json:"action"`
}

// handleSync godoc
//
//	@Summary		Replace the registry
//	@Description	Commits newList as the whole registry document, tagged with action
//	@Tags			Dashboard
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Failure		500	{object}	map[string]any	"commit error message"
//	@Router			/api/sync [post]
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var reg model.Registry
	if len(req.NewList) == 0 || string(req.NewList) == "null" {
		writeError(w, http.StatusBadRequest, errors.New("newList is required"))
		return
	}
	if err := json.Unmarshal(req.NewList, &reg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("newList must be a JSON array: %w", err))
		return
	}
	if reg == nil {
		reg = model.Registry{}
	}
	if err := s.registry.Sync(r.Context(), reg, req.Action); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin godoc
//
//	@Summary		Dashboard login
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Failure		401	{object}	map[string]any
//	@Failure		429	{object}	map[string]any
//	@Failure		500	{object}	map[string]any	"Auth Service Error"
//	@Router			/api/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "login", s.cfg.LoginPerMinute) {
		return
	}
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": user.Username})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Auth Service Error"})
	}
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 || s.limiter == nil {
		return true
	}
	key := fmt.Sprintf("%s:ip:%s", action, clientIP(r))
	if ok, retry := s.limiter.Allow(key, limit, time.Minute); !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func readJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	secs := int(retry.Round(time.Second).Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": secs,
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}
