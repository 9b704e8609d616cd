package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"go.viam.com/motionref/motionclip"
	"go.viam.com/motionref/playback"
)

const sessionHeader = "X-Session-ID"

// how often the playback websocket pushes state snapshots to viewers
const statePushInterval = 100 * time.Millisecond

// Server is the HTTP/WebSocket gateway the browser viewer talks to.
type Server struct {
	cfg      *Config
	app      *fiber.App
	sessions *SessionManager
	gen      Generator
	lib      *motionclip.Library
	logger   golog.Logger

	// smoothing applied to generated clips on ingestion
	smooth       bool
	smoothWindow int

	// the controller is single-caller by contract; the gateway is its sole
	// owner here and serializes access
	ctrlMu sync.Mutex
	ctrl   *playback.Controller
}

// NewServer assembles the gateway around an existing motion library and
// playback controller.
func NewServer(
	ctx context.Context,
	cfg *Config,
	gen Generator,
	lib *motionclip.Library,
	ctrl *playback.Controller,
	playCfg *playback.Config,
	logger golog.Logger,
) *Server {
	s := &Server{
		cfg:          cfg,
		sessions:     NewSessionManager(ctx, cfg, clock.New(), logger),
		gen:          gen,
		lib:          lib,
		ctrl:         ctrl,
		logger:       logger,
		smooth:       playCfg.Smooth,
		smoothWindow: playCfg.SmoothWindow,
	}

	app := fiber.New(fiber.Config{
		AppName:               "motion gateway",
		DisableStartupMessage: true,
	})
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowedOrigins, AllowHeaders: "*"}))

	app.Get("/", s.handleRoot)
	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Post("/session", s.handleCreateSession)
	api.Get("/config", s.handleConfig)
	api.Post("/generate", s.handleGenerate)
	api.Get("/motions", s.handleListMotions)
	api.Get("/motions/:id", s.handleGetMotion)
	api.Delete("/motions/:id", s.handleDeleteMotion)
	api.Get("/playback", s.handlePlaybackState)
	api.Post("/playback/request", s.handlePlaybackRequest)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/playback", websocket.New(s.handlePlaybackWS))

	s.app = app
	return s
}

// App exposes the underlying fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Infow("gateway listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server and the session cleanup loop.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.sessions.Close()
	return err
}

func errorEnvelope(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":          "running",
		"service":         "motion gateway",
		"remote_server":   fmt.Sprintf("%s:%d", s.cfg.RemoteWSHost, s.cfg.RemoteWSPort),
		"active_sessions": s.sessions.ActiveSessions(),
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":          "healthy",
		"active_sessions": s.sessions.ActiveSessions(),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	id := s.sessions.GetOrCreate("")
	return c.JSON(fiber.Map{"session_id": id})
}

func (s *Server) handleConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"max_motion_length":      9.8,
		"min_motion_length":      0.1,
		"max_inference_steps":    1000,
		"min_inference_steps":    1,
		"max_stored_motions":     s.cfg.MaxStoredMotionsPerUser,
		"data_retention_minutes": s.cfg.DataRetentionMinutes,
	})
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	sessionID := s.sessions.GetOrCreate(c.Get(sessionHeader))
	if !s.sessions.AllowRequest(sessionID) {
		return errorEnvelope(c, fiber.StatusTooManyRequests, "RATE_LIMIT",
			fmt.Sprintf("rate limit exceeded - max %d requests per minute", s.cfg.MaxRequestsPerMinute))
	}

	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorEnvelope(c, fiber.StatusBadRequest, "BAD_REQUEST", "cannot parse request body")
	}
	if req.Text == "" {
		return errorEnvelope(c, fiber.StatusBadRequest, "BAD_REQUEST", "text is required")
	}

	raw, err := s.gen.Generate(c.Context(), &req)
	if err != nil {
		if genErr, ok := err.(*GenerationError); ok {
			status := fiber.StatusInternalServerError
			switch genErr.Code {
			case CodeTimeout:
				status = fiber.StatusGatewayTimeout
			case CodeServerUnavailable:
				status = fiber.StatusServiceUnavailable
			case CodeInvalidResponse:
				status = fiber.StatusBadGateway
			}
			return errorEnvelope(c, status, genErr.Code, genErr.Message)
		}
		s.logger.Errorw("generation failed", "error", err)
		return errorEnvelope(c, fiber.StatusInternalServerError, "GENERATION_FAILED", "failed to generate motion")
	}

	motionID := fmt.Sprintf("gen_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
	raw.Name = "[AI] " + truncate(req.Text, 30)

	ingested := s.ingest(motionID, raw, req.Smooth)
	s.sessions.StoreMotion(sessionID, &StoredMotion{
		MotionID:   motionID,
		TextPrompt: req.Text,
		Clip:       *raw,
		CreatedAt:  time.Now(),
	})
	s.logger.Infow("generated motion", "motion_id", motionID, "session_id", sessionID, "ingested", ingested)

	return c.JSON(fiber.Map{
		"success":   true,
		"motion_id": motionID,
		"motion":    raw,
		"ingested":  ingested,
	})
}

// ingest validates a generated clip into the library under its motion ID,
// smoothing first when configured (generated clips are the noisy ones).
// A clip that fails validation is kept in the session for inspection but
// never enters the library.
func (s *Server) ingest(motionID string, raw *motionclip.RawClip, smoothOverride *bool) bool {
	candidate := *raw
	doSmooth := s.smooth
	if smoothOverride != nil {
		doSmooth = *smoothOverride
	}
	if doSmooth {
		if clip, err := candidate.Parse(s.lib.NJoints()); err == nil {
			smoothed := motionclip.Smooth(clip, s.smoothWindow)
			candidate = rawFromClip(smoothed, candidate)
		}
	}

	res := s.lib.AddMotions(map[string]motionclip.RawClip{motionID: candidate}, true)
	if len(res.Invalid) > 0 {
		s.logger.Warnw("generated motion failed validation", "motion_id", motionID)
		return false
	}
	return true
}

func (s *Server) handleListMotions(c *fiber.Ctx) error {
	sessionID := c.Get(sessionHeader)
	if sessionID == "" || !s.sessions.Lookup(sessionID) {
		return c.JSON(fiber.Map{"motions": []MotionSummary{}, "session_id": nil})
	}
	return c.JSON(fiber.Map{
		"motions":    s.sessions.ListMotions(sessionID),
		"session_id": sessionID,
	})
}

func (s *Server) handleGetMotion(c *fiber.Ctx) error {
	sessionID := c.Get(sessionHeader)
	if sessionID == "" || !s.sessions.Lookup(sessionID) {
		return errorEnvelope(c, fiber.StatusNotFound, "NOT_FOUND", "session not found")
	}
	motion, ok := s.sessions.Motion(sessionID, c.Params("id"))
	if !ok {
		return errorEnvelope(c, fiber.StatusNotFound, "NOT_FOUND", "motion not found")
	}
	return c.JSON(motion)
}

func (s *Server) handleDeleteMotion(c *fiber.Ctx) error {
	sessionID := c.Get(sessionHeader)
	if sessionID == "" || !s.sessions.Lookup(sessionID) {
		return errorEnvelope(c, fiber.StatusNotFound, "NOT_FOUND", "session not found")
	}
	if !s.sessions.DeleteMotion(sessionID, c.Params("id")) {
		return errorEnvelope(c, fiber.StatusNotFound, "NOT_FOUND", "motion not found")
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handlePlaybackState(c *fiber.Ctx) error {
	s.ctrlMu.Lock()
	st := s.ctrl.PlaybackState()
	available := s.lib.AvailableMotions()
	s.ctrlMu.Unlock()
	return c.JSON(fiber.Map{
		"playback":          st,
		"available_motions": available,
	})
}

// playbackRequest carries a motion request from the viewer along with the
// robot's live state at the moment of the request.
type playbackRequest struct {
	Name      string             `json:"name"`
	LiveState playback.LiveState `json:"live_state"`
}

func (s *Server) handlePlaybackRequest(c *fiber.Ctx) error {
	var req playbackRequest
	if err := c.BodyParser(&req); err != nil {
		return errorEnvelope(c, fiber.StatusBadRequest, "BAD_REQUEST", "cannot parse request body")
	}
	if req.Name == "" {
		return errorEnvelope(c, fiber.StatusBadRequest, "BAD_REQUEST", "name is required")
	}

	s.ctrlMu.Lock()
	ok := s.ctrl.RequestMotion(req.Name, &req.LiveState)
	st := s.ctrl.PlaybackState()
	s.ctrlMu.Unlock()

	return c.JSON(fiber.Map{"ok": ok, "playback": st})
}

// handlePlaybackWS streams playback state snapshots to a viewer. The
// controller exposes only a synchronous snapshot accessor; the polling
// cadence lives here, not in the core.
func (s *Server) handlePlaybackWS(conn *websocket.Conn) {
	ticker := time.NewTicker(statePushInterval)
	defer ticker.Stop()
	for range ticker.C {
		s.ctrlMu.Lock()
		st := s.ctrl.PlaybackState()
		s.ctrlMu.Unlock()
		if err := conn.WriteJSON(st); err != nil {
			return
		}
	}
}

// rawFromClip converts a validated clip back to wire form, carrying over the
// metadata of the original raw payload.
func rawFromClip(clip *motionclip.Clip, meta motionclip.RawClip) motionclip.RawClip {
	out := motionclip.RawClip{
		Name:       meta.Name,
		FPS:        meta.FPS,
		FrameCount: clip.Len(),
		Duration:   meta.Duration,
		CreatedAt:  meta.CreatedAt,
	}
	for i := 0; i < clip.Len(); i++ {
		out.JointPos = append(out.JointPos, clip.JointPos[i])
		out.RootPos = append(out.RootPos, []float64{clip.RootPos[i].X, clip.RootPos[i].Y, clip.RootPos[i].Z})
		q := clip.RootQuat[i]
		out.RootQuat = append(out.RootQuat, []float64{q.Real, q.Imag, q.Jmag, q.Kmag})
	}
	return out
}
