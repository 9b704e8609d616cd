package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/motionref/motionclip"
)

// Error codes surfaced to the HTTP layer.
const (
	CodeTimeout           = "TIMEOUT"
	CodeServerUnavailable = "SERVER_UNAVAILABLE"
	CodeServerError       = "SERVER_ERROR"
	CodeInvalidResponse   = "INVALID_RESPONSE"
)

const dialTimeout = 10 * time.Second

// GenerationError is a failure from the remote generation server, tagged
// with the code reported to clients.
type GenerationError struct {
	Code    string
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// GenerateRequest is the request forwarded to the remote generation server.
type GenerateRequest struct {
	Text              string  `json:"text"`
	MotionLength      float64 `json:"motion_length"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Seed              *int    `json:"seed,omitempty"`
	Smooth            *bool   `json:"smooth,omitempty"`
	SmoothWindow      int     `json:"smooth_window,omitempty"`
	AdaptiveSmooth    bool    `json:"adaptive_smooth"`
	StaticStart       bool    `json:"static_start"`
	StaticFrames      int     `json:"static_frames"`
	BlendFrames       int     `json:"blend_frames"`
}

// Generator produces a raw motion clip from a text prompt.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*motionclip.RawClip, error)
}

// wsGenerator talks to the remote WebSocket motion generation server: one
// request message out, one motion (or error) payload back per connection.
type wsGenerator struct {
	url     string
	timeout time.Duration
}

// NewGenerationClient returns a Generator for the configured remote server.
func NewGenerationClient(cfg *Config) Generator {
	return &wsGenerator{
		url:     fmt.Sprintf("ws://%s:%d%s", cfg.RemoteWSHost, cfg.RemoteWSPort, cfg.RemoteWSPath),
		timeout: time.Duration(cfg.ResponseTimeoutSec) * time.Second,
	}
}

// remoteError is the error payload shape the generation server sends.
type remoteError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (g *wsGenerator) Generate(ctx context.Context, req *GenerateRequest) (*motionclip.RawClip, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, g.url, nil)
	if err != nil {
		return nil, &GenerationError{Code: CodeServerUnavailable, Message: "motion generation server unavailable"}
	}
	defer goutils.UncheckedErrorFunc(conn.Close)

	if err := conn.WriteJSON(req); err != nil {
		return nil, errors.Wrap(err, "cannot send generation request")
	}

	if err := conn.SetReadDeadline(time.Now().Add(g.timeout)); err != nil {
		return nil, err
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, &GenerationError{Code: CodeTimeout, Message: "generation took too long"}
	}

	// a payload carrying an error field is a server-side failure; anything
	// else must parse as a motion clip
	var remote remoteError
	if err := json.Unmarshal(payload, &remote); err == nil && remote.Error != "" {
		code := remote.Code
		if code == "" {
			code = CodeServerError
		}
		return nil, &GenerationError{Code: code, Message: remote.Error}
	}

	var raw motionclip.RawClip
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &GenerationError{Code: CodeInvalidResponse, Message: "invalid response from generation server"}
	}
	return &raw, nil
}
