package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"go.viam.com/motionref/motionclip"
	"go.viam.com/motionref/playback"
)

type stubGenerator struct {
	raw *motionclip.RawClip
	err error
}

func (g *stubGenerator) Generate(ctx context.Context, req *GenerateRequest) (*motionclip.RawClip, error) {
	if g.err != nil {
		return nil, g.err
	}
	out := *g.raw
	return &out, nil
}

func restRaw(frames, nJoints int) motionclip.RawClip {
	rc := motionclip.RawClip{}
	for i := 0; i < frames; i++ {
		rc.JointPos = append(rc.JointPos, make([]float64, nJoints))
		rc.RootPos = append(rc.RootPos, []float64{0, 0, 0.8})
		rc.RootQuat = append(rc.RootQuat, []float64{1, 0, 0, 0})
	}
	return rc
}

func testServer(t *testing.T, gen Generator) *Server {
	t.Helper()
	logger := golog.NewTestLogger(t)

	lib, err := motionclip.NewLibrary(map[string]motionclip.RawClip{
		motionclip.DefaultName: restRaw(1, 2),
		"walk":                 restRaw(20, 2),
	}, 0, logger)
	test.That(t, err, test.ShouldBeNil)

	playCfg := &playback.Config{
		DatasetJointNames: []string{"hip", "knee"},
		PolicyJointNames:  []string{"hip", "knee"},
	}
	ctrl, err := playback.NewController(playCfg, lib, logger)
	test.That(t, err, test.ShouldBeNil)

	cfg := &Config{}
	test.That(t, cfg.Validate("gateway"), test.ShouldBeNil)

	s := NewServer(context.Background(), cfg, gen, lib, ctrl, playCfg, logger)
	t.Cleanup(func() {
		test.That(t, s.Shutdown(), test.ShouldBeNil)
	})
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		test.That(t, err, test.ShouldBeNil)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req, -1)
	test.That(t, err, test.ShouldBeNil)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	if len(raw) > 0 {
		test.That(t, json.Unmarshal(raw, &decoded), test.ShouldBeNil)
	}
	return resp, decoded
}

func TestHealthEndpoints(t *testing.T) {
	s := testServer(t, &stubGenerator{})

	resp, body := doJSON(t, s, http.MethodGet, "/", nil, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, body["status"], test.ShouldEqual, "running")

	resp, body = doJSON(t, s, http.MethodGet, "/health", nil, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, body["status"], test.ShouldEqual, "healthy")
}

func TestGenerateStoresAndIngests(t *testing.T) {
	raw := restRaw(15, 2)
	s := testServer(t, &stubGenerator{raw: &raw})

	_, sessionBody := doJSON(t, s, http.MethodPost, "/api/session", nil, nil)
	sessionID, _ := sessionBody["session_id"].(string)
	test.That(t, sessionID, test.ShouldNotBeEmpty)
	headers := map[string]string{sessionHeader: sessionID}

	resp, body := doJSON(t, s, http.MethodPost, "/api/generate",
		map[string]interface{}{"text": "wave to the crowd", "motion_length": 4.0}, headers)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, body["success"], test.ShouldEqual, true)
	test.That(t, body["ingested"], test.ShouldEqual, true)
	motionID, _ := body["motion_id"].(string)
	test.That(t, motionID, test.ShouldNotBeEmpty)

	// the generated clip is now in the motion library
	names := s.lib.AvailableMotions()
	test.That(t, names, test.ShouldContain, motionID)

	// and retrievable from the session
	resp, motion := doJSON(t, s, http.MethodGet, "/api/motions/"+motionID, nil, headers)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, motion["motion_id"], test.ShouldEqual, motionID)

	resp, listing := doJSON(t, s, http.MethodGet, "/api/motions", nil, headers)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	motions, _ := listing["motions"].([]interface{})
	test.That(t, motions, test.ShouldHaveLength, 1)

	// delete removes it from the session store
	resp, _ = doJSON(t, s, http.MethodDelete, "/api/motions/"+motionID, nil, headers)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	resp, _ = doJSON(t, s, http.MethodGet, "/api/motions/"+motionID, nil, headers)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
}

func TestGenerateRateLimited(t *testing.T) {
	raw := restRaw(5, 2)
	s := testServer(t, &stubGenerator{raw: &raw})

	_, sessionBody := doJSON(t, s, http.MethodPost, "/api/session", nil, nil)
	sessionID, _ := sessionBody["session_id"].(string)
	headers := map[string]string{sessionHeader: sessionID}

	payload := map[string]interface{}{"text": "jog in place"}
	for i := 0; i < DefaultMaxRequestsPerMinute; i++ {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/generate", payload, headers)
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	}
	resp, body := doJSON(t, s, http.MethodPost, "/api/generate", payload, headers)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusTooManyRequests)
	test.That(t, body["code"], test.ShouldEqual, "RATE_LIMIT")
}

func TestGenerateErrorMapping(t *testing.T) {
	s := testServer(t, &stubGenerator{err: &GenerationError{Code: CodeTimeout, Message: "generation took too long"}})
	resp, body := doJSON(t, s, http.MethodPost, "/api/generate",
		map[string]interface{}{"text": "backflip"}, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusGatewayTimeout)
	test.That(t, body["code"], test.ShouldEqual, CodeTimeout)

	s = testServer(t, &stubGenerator{err: &GenerationError{Code: CodeServerUnavailable, Message: "down"}})
	resp, _ = doJSON(t, s, http.MethodPost, "/api/generate",
		map[string]interface{}{"text": "backflip"}, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)
}

func TestGenerateValidatesBody(t *testing.T) {
	s := testServer(t, &stubGenerator{})
	resp, body := doJSON(t, s, http.MethodPost, "/api/generate",
		map[string]interface{}{"motion_length": 2.0}, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, body["code"], test.ShouldEqual, "BAD_REQUEST")
}

func TestPlaybackEndpoints(t *testing.T) {
	s := testServer(t, &stubGenerator{})

	resp, body := doJSON(t, s, http.MethodGet, "/api/playback", nil, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	pb, _ := body["playback"].(map[string]interface{})
	test.That(t, pb["current_name"], test.ShouldEqual, motionclip.DefaultName)
	test.That(t, pb["is_default"], test.ShouldEqual, true)

	reqBody := map[string]interface{}{
		"name": "walk",
		"live_state": map[string]interface{}{
			"joint_pos": []float64{0, 0},
			"root_pos":  map[string]float64{"X": 0, "Y": 0, "Z": 0.8},
			"root_quat": map[string]float64{"Real": 1},
		},
	}
	resp, body = doJSON(t, s, http.MethodPost, "/api/playback/request", reqBody, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, body["ok"], test.ShouldEqual, true)
	pb, _ = body["playback"].(map[string]interface{})
	test.That(t, pb["current_name"], test.ShouldEqual, "walk")

	// gating applies over HTTP the same as in-process
	resp, body = doJSON(t, s, http.MethodPost, "/api/playback/request", reqBody, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, body["ok"], test.ShouldEqual, false)

	// missing name is a bad request
	resp, _ = doJSON(t, s, http.MethodPost, "/api/playback/request",
		map[string]interface{}{"live_state": map[string]interface{}{}}, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
}

func TestUnknownSessionMotionLookups(t *testing.T) {
	s := testServer(t, &stubGenerator{})

	resp, _ := doJSON(t, s, http.MethodGet, "/api/motions/m1", nil,
		map[string]string{sessionHeader: "ghost"})
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)

	resp, body := doJSON(t, s, http.MethodGet, "/api/motions", nil, nil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	motions, _ := body["motions"].([]interface{})
	test.That(t, motions, test.ShouldHaveLength, 0)
}
