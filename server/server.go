// Package server exposes the gateway over HTTP with gin.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/gateway"
	"github.com/PeterFile/hyphae-platform/proxy"
)

// Server routes HTTP requests to a gateway.Service.
type Server struct {
	svc          *gateway.Service
	logger       zerolog.Logger
	maxBodyBytes int64
	mcp          http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxBodyBytes sets the invoke body ceiling.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMCPHandler mounts h at /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// New creates a Server.
func New(svc *gateway.Service, opts ...Option) *Server {
	s := &Server{
		svc:          svc,
		logger:       zerolog.Nop(),
		maxBodyBytes: proxy.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Metrics(), Logger(s.logger))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/search", s.search)
	api.GET("/agents/:id", s.agent)
	api.GET("/agents/:id/availability", s.availability)
	api.POST("/invoke", s.invoke)

	if s.mcp != nil {
		r.Any("/mcp", gin.WrapH(s.mcp))
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": s.svc.Providers(),
	})
}

func (s *Server) search(c *gin.Context) {
	filters, err := ParseFilters(c.Request.URL.Query())
	if err != nil {
		badRequest(c, err.Error(), err)
		return
	}
	res, err := s.svc.Search(c.Request.Context(), filters)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) agent(c *gin.Context) {
	agent, err := s.svc.Agent(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (s *Server) availability(c *gin.Context) {
	res, err := s.svc.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// invoke relays the upstream status and settlement headers; the JSON body
// is the proxy.Response envelope.
func (s *Server) invoke(c *gin.Context) {
	if c.Request.ContentLength > s.maxBodyBytes {
		abortWithError(c, hyphae.NewGatewayError(hyphae.ErrCodeBodyTooLarge, "request body too large", hyphae.ErrBodyTooLarge).
			WithDetails("limit", s.maxBodyBytes))
		return
	}
	req, err := proxy.DecodeInvokeRequest(c.Request.Body, s.maxBodyBytes)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := s.svc.Invoke(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	for name, value := range resp.Headers {
		c.Header(name, value)
	}
	if !bodyAllowed(resp.Status) {
		c.Status(resp.Status)
		return
	}
	c.JSON(resp.Status, resp)
}

// bodyAllowed reports whether an HTTP response with status may carry a body.
// 204 and 304 upstream answers are relayed as bare statuses.
func bodyAllowed(status int) bool {
	return status >= http.StatusOK && status != http.StatusNoContent && status != http.StatusNotModified
}

// ParseFilters reads search parameters from a query string. provider may be
// repeated or comma-separated.
func ParseFilters(q map[string][]string) (hyphae.SearchFilters, error) {
	get := func(key string) string {
		if v := q[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	f := hyphae.SearchFilters{
		Query:    get("q"),
		Category: get("category"),
		Sort:     hyphae.SortMode(get("sort")),
	}
	for _, v := range q["provider"] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				f.Providers = append(f.Providers, p)
			}
		}
	}

	var err error
	if f.MinPrice, err = optionalInt(get("minPrice"), "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optionalInt(get("maxPrice"), "maxPrice"); err != nil {
		return f, err
	}
	if f.Page, err = intParam(get("page"), "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = intParam(get("pageSize"), "pageSize"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func optionalInt(s, name string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &paramError{name: name, value: s}
	}
	return &n, nil
}

func intParam(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, &paramError{name: name, value: s}
	}
	return n, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	b, _ := json.Marshal(e.value)
	return "invalid " + e.name + ": " + string(b)
}

func (e *paramError) Unwrap() error {
	return hyphae.ErrInvalidFilters
}
