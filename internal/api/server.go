package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"punchclock/internal/attendance"
	"punchclock/internal/auth"
	"punchclock/internal/config"
	"punchclock/internal/httpmiddleware"
	"punchclock/internal/metrics"
	"punchclock/internal/queue"
)

// PunchService handles one scan end to end.
type PunchService interface {
	Punch(ctx context.Context, req attendance.Request) (attendance.Result, error)
}

// PunchLister reads back the forensic punch trail.
type PunchLister interface {
	List(ctx context.Context, personID, deviceID string, limit, offset int) ([]attendance.Punch, error)
}

// DeviceRegistrar upserts reader devices.
type DeviceRegistrar interface {
	Register(ctx context.Context, deviceID, addr string) error
}

// Server carries the endpoint's collaborators explicitly; there is no
// package-level client state.
type Server struct {
	cfg     config.App
	service PunchService
	punches PunchLister
	devices DeviceRegistrar
	outbox  queue.Queue // nil disables outcome publishing
	health  func(ctx context.Context) (db, redis bool)
}

// NewServer wires a server. health may be nil for tests.
func NewServer(cfg config.App, service PunchService, punches PunchLister, devices DeviceRegistrar, outbox queue.Queue, health func(ctx context.Context) (bool, bool)) *Server {
	if health == nil {
		health = func(context.Context) (bool, bool) { return true, true }
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return &Server{cfg: cfg, service: service, punches: punches, devices: devices, outbox: outbox, health: health}
}

// Routes builds the gin engine. Readers have no browser origin, so CORS
// allows everything.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	if s.cfg.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewSimpleTokenBucket(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin).GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.handleHealthz)
	r.POST("/v1/devices/register", s.handleRegisterDevice)

	grp := r.Group("/v1")
	if s.cfg.RequireDeviceAuth {
		grp.Use(auth.DeviceAuth(s.cfg.JWTSigningKey, s.cfg.JWTIssuer))
	}
	grp.POST("/punches", s.handlePunch)
	grp.GET("/punches", s.handleListPunches)

	return r
}

type punchRequest struct {
	CardNumber string `json:"card_number"`
	DeviceIP   string `json:"device_ip"`
	PunchTime  string `json:"punch_time"`
}

func (s *Server) handlePunch(c *gin.Context) {
	var req punchRequest
	if err := bindStrict(c.Request.Body, &req); err != nil {
		metrics.Punches.WithLabelValues(metrics.ResultInvalidRequest).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.CardNumber == "" {
		metrics.Punches.WithLabelValues(metrics.ResultInvalidRequest).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Card number is required"})
		return
	}

	var punchedAt time.Time
	if req.PunchTime != "" {
		parsed, err := time.Parse(time.RFC3339, req.PunchTime)
		if err != nil {
			metrics.Punches.WithLabelValues(metrics.ResultInvalidRequest).Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "punch_time must be ISO-8601"})
			return
		}
		punchedAt = parsed
	}

	deviceAddr := req.DeviceIP
	if deviceAddr == "" {
		deviceAddr = c.ClientIP()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.service.Punch(ctx, attendance.Request{
		CardNumber: req.CardNumber,
		DeviceAddr: deviceAddr,
		PunchedAt:  punchedAt,
	})
	if err != nil {
		s.renderPunchError(c, req.CardNumber, err)
		return
	}

	if res.FirstPunch {
		metrics.Punches.WithLabelValues(metrics.ResultAccepted).Inc()
		metrics.Marked.WithLabelValues(string(res.Kind), string(res.Status)).Inc()
	} else {
		metrics.Punches.WithLabelValues(metrics.ResultDuplicate).Inc()
	}
	s.publishOutcome(res)

	if res.Kind == attendance.KindStudent {
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"type":           "student",
			"name":           res.Name,
			"status":         res.Status,
			"punch_time":     res.PunchedAt.Format(time.RFC3339),
			"is_first_punch": res.FirstPunch,
			"message":        res.Message,
		})
		return
	}

	body := gin.H{
		"success":        true,
		"type":           "teacher",
		"name":           res.Name,
		"status":         res.Status,
		"action":         res.Action,
		"punch_time":     res.PunchedAt.Format(time.RFC3339),
		"is_first_punch": res.FirstPunch,
		"message":        res.Message,
	}
	if res.Status == attendance.StatusLate {
		body["late_minutes"] = res.LateMinutes
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) renderPunchError(c *gin.Context, cardNumber string, err error) {
	switch {
	case errors.Is(err, attendance.ErrCardRequired):
		metrics.Punches.WithLabelValues(metrics.ResultInvalidRequest).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Card number is required"})
	case errors.Is(err, attendance.ErrCardNotRegistered):
		metrics.Punches.WithLabelValues(metrics.ResultUnknownCard).Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not registered", "card_number": cardNumber})
	case errors.Is(err, attendance.ErrStudentNotFound):
		metrics.Punches.WithLabelValues(metrics.ResultPersonMissing).Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
	case errors.Is(err, attendance.ErrStaffNotFound):
		metrics.Punches.WithLabelValues(metrics.ResultPersonMissing).Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "Teacher not found"})
	default:
		metrics.Punches.WithLabelValues(metrics.ResultStoreError).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) publishOutcome(res attendance.Result) {
	if s.outbox == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.outbox.Publish(ctx, queue.Outcome{
		Kind:   string(res.Kind),
		Status: string(res.Status),
		Action: res.Action,
		Date:   res.Date,
		First:  res.FirstPunch,
	})
	if err != nil {
		log.Printf("outcome publish failed: %v", err)
	}
}

func (s *Server) handleRegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
		DeviceIP string `json:"device_ip"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addr := req.DeviceIP
	if addr == "" {
		addr = c.ClientIP()
	}
	if err := s.devices.Register(c.Request.Context(), req.DeviceID, addr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, err := auth.Issue(req.DeviceID, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (s *Server) handleListPunches(c *gin.Context) {
	personID := c.Query("person_id")
	deviceID := c.Query("device_id")
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	punches, err := s.punches.List(c.Request.Context(), personID, deviceID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"punches": punches})
}

func (s *Server) handleHealthz(c *gin.Context) {
	dbHealthy, redisHealthy := s.health(c.Request.Context())
	status := http.StatusOK
	if !dbHealthy || !redisHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
}

// bindStrict decodes JSON rejecting unknown fields, so a misconfigured reader
// payload fails loudly instead of being silently ignored.
func bindStrict(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// securityHeaders sets baseline response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
