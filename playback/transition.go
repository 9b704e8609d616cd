package playback

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"go.viam.com/motionref/spatialmath"
)

// transitionSteps decides how many synthesized frames are needed to bridge
// from the current pose into the target frame. The base count is scaled up
// when the pose difference is large and, optionally, with the current root
// speed; fast-moving robots need longer blends to avoid overshoot. The
// result is clamped to the configured range.
func transitionSteps(cfg *Config, current, target *Frame, live *LiveState) int {
	steps := float64(cfg.TransitionSteps)

	if cfg.AdaptiveTransition {
		score := poseDiffScore(current, target)
		if score > cfg.PoseDiffThreshold {
			steps *= cfg.HighDiffMultiplier
		}
	}
	if cfg.VelocityAware {
		steps *= 1 + cfg.VelocityScale*live.RootLinVel.Norm()
	}

	n := int(math.Round(steps))
	if n < cfg.MinTransitionSteps {
		n = cfg.MinTransitionSteps
	}
	if n > cfg.MaxTransitionSteps {
		n = cfg.MaxTransitionSteps
	}
	return n
}

// poseDiffScore is the mean absolute per-joint angle difference plus the
// Euclidean root distance between two frames.
func poseDiffScore(current, target *Frame) float64 {
	score := current.RootPos.Sub(target.RootPos).Norm()
	if n := len(current.JointPos); n > 0 {
		diff := make([]float64, n)
		floats.SubTo(diff, current.JointPos, target.JointPos)
		score += floats.Norm(diff, 1) / float64(n)
	}
	return score
}

// synthesizeTransition produces n interpolated frames from the current pose
// toward the target. Fractions run i/(n+1) for i in [1, n]: the first frame
// is one step past "now" rather than a duplicate of it, and the target
// itself is supplied by the clip's own first frame immediately after, giving
// uniform spacing across the seam. Joint and root positions interpolate
// linearly; orientation interpolates spherically for angular velocity
// continuity. n of zero is a direct cut.
func synthesizeTransition(current, target *Frame, n int) []Frame {
	frames := make([]Frame, 0, n)
	for i := 1; i <= n; i++ {
		by := float64(i) / float64(n+1)

		joints := make([]float64, len(current.JointPos))
		for j, v := range current.JointPos {
			joints[j] = v + (target.JointPos[j]-v)*by
		}
		frames = append(frames, Frame{
			JointPos: joints,
			RootPos:  spatialmath.Lerp(current.RootPos, target.RootPos, by),
			RootQuat: spatialmath.Slerp(current.RootQuat, target.RootQuat, by),
		})
	}
	return frames
}
