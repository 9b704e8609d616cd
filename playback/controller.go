package playback

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/motionref/motionclip"
)

// Controller owns the active reference sequence (transition frames followed
// by clip frames), the index into it, and the gating policy that decides
// when a new motion may begin. It is driven synchronously by the simulation
// loop, one Advance and GetFrame per tick, and assumes a single logical
// caller; it does no internal locking or scheduling.
type Controller struct {
	cfg    *Config
	lib    *motionclip.Library
	mapper *jointMapper
	logger golog.Logger

	frames        []Frame
	refIdx        int
	transitionLen int
	motionLen     int
	currentName   string
	currentDone   bool
}

// NewController creates a controller in the idle rest state with no
// reference sequence built yet.
func NewController(cfg *Config, lib *motionclip.Library, logger golog.Logger) (*Controller, error) {
	if err := cfg.Validate("playback"); err != nil {
		return nil, err
	}
	// the mapper and the pose difference code assume the configured dataset
	// ordering is the width the library's clips store
	if lib.NJoints() != len(cfg.DatasetJointNames) {
		return nil, errors.Errorf("config names %d dataset joints but library clips store %d",
			len(cfg.DatasetJointNames), lib.NJoints())
	}
	return &Controller{
		cfg:         cfg,
		lib:         lib,
		mapper:      newJointMapper(cfg.DatasetJointNames, cfg.PolicyJointNames),
		logger:      logger,
		currentName: motionclip.DefaultName,
		currentDone: true,
	}, nil
}

// RequestMotion rebuilds the reference sequence for the named clip, blended
// from the robot's live pose. It succeeds only from the idle rest state, or
// when the target is "default": returning to rest is always permitted, as
// an interrupt, but a tracked motion must otherwise run to completion
// before a different one may begin. Rejected requests change nothing and
// are a normal, retryable outcome.
func (c *Controller) RequestMotion(name string, live *LiveState) bool {
	idleAtDefault := c.currentDone && c.currentName == motionclip.DefaultName
	if !idleAtDefault && name != motionclip.DefaultName {
		c.logger.Debugw("motion request rejected by gating policy",
			"requested", name, "current", c.currentName, "done", c.currentDone)
		return false
	}
	clip, ok := c.lib.Motion(name)
	if !ok {
		c.logger.Debugw("motion request for unknown clip", "requested", name)
		return false
	}

	aligned := alignClip(clip, live)
	current := &Frame{
		JointPos: c.mapper.datasetJoints(live.JointPos),
		RootPos:  live.RootPos,
		RootQuat: live.RootQuat,
	}
	joints, root, q := aligned.First()
	target := &Frame{JointPos: joints, RootPos: root, RootQuat: q}

	transition := synthesizeTransition(current, target, transitionSteps(c.cfg, current, target, live))

	frames := make([]Frame, 0, len(transition)+aligned.Len())
	frames = append(frames, transition...)
	for i := 0; i < aligned.Len(); i++ {
		frames = append(frames, Frame{
			JointPos: aligned.JointPos[i],
			RootPos:  aligned.RootPos[i],
			RootQuat: aligned.RootQuat[i],
		})
	}

	c.frames = frames
	c.refIdx = 0
	c.transitionLen = len(transition)
	c.motionLen = aligned.Len()
	c.currentName = name
	c.currentDone = len(frames) <= 1

	c.logger.Debugw("reference sequence rebuilt",
		"motion", name, "transition_len", c.transitionLen, "motion_len", c.motionLen)
	return true
}

// Advance steps the playback index by one frame. Reaching the final index
// marks the sequence done; advancing past it is a no-op.
func (c *Controller) Advance() {
	if c.refIdx < len(c.frames)-1 {
		c.refIdx++
		if c.refIdx == len(c.frames)-1 {
			c.currentDone = true
		}
	}
}

// GetFrame returns the reference frame at the given index, clamped into the
// valid range; a stale index from a caller must never crash the loop. With
// no sequence built yet it serves the rest clip's first frame.
func (c *Controller) GetFrame(index int) Frame {
	if len(c.frames) == 0 {
		joints, root, q := c.lib.Default().First()
		return Frame{JointPos: joints, RootPos: root, RootQuat: q}
	}
	if index < 0 {
		index = 0
	}
	if index >= len(c.frames) {
		index = len(c.frames) - 1
	}
	return c.frames[index]
}

// CurrentFrame returns the frame at the playback index.
func (c *Controller) CurrentFrame() Frame {
	return c.GetFrame(c.refIdx)
}

// Reset unconditionally returns the controller to the idle rest state,
// bypassing the gating policy and discarding the reference sequence. Used
// for full simulation resets.
func (c *Controller) Reset(live *LiveState) {
	c.frames = nil
	c.refIdx = 0
	c.transitionLen = 0
	c.motionLen = 0
	c.currentName = motionclip.DefaultName
	c.currentDone = true
}

// IsReady reports whether any reference sequence has been built.
func (c *Controller) IsReady() bool {
	return len(c.frames) > 0
}

// PlaybackState returns an immutable snapshot of the playback state.
func (c *Controller) PlaybackState() State {
	return State{
		CurrentName:   c.currentName,
		CurrentDone:   c.currentDone,
		RefIdx:        c.refIdx,
		RefLen:        len(c.frames),
		TransitionLen: c.transitionLen,
		MotionLen:     c.motionLen,
		InTransition:  c.transitionLen > 0 && c.refIdx < c.transitionLen,
		IsDefault:     c.currentName == motionclip.DefaultName,
	}
}
