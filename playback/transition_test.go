package playback

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func testConfig() *Config {
	return &Config{
		TransitionSteps:    100,
		MinTransitionSteps: 10,
		MaxTransitionSteps: 300,
		AdaptiveTransition: true,
		PoseDiffThreshold:  1.0,
		HighDiffMultiplier: 2.0,
		DatasetJointNames:  []string{"hip", "knee"},
		PolicyJointNames:   []string{"knee", "hip"},
	}
}

func frameAt(joints []float64, pos r3.Vector) *Frame {
	return &Frame{JointPos: joints, RootPos: pos, RootQuat: quat.Number{Real: 1}}
}

func TestTransitionStepsBase(t *testing.T) {
	cfg := testConfig()
	cur := frameAt([]float64{0, 0}, r3.Vector{})
	tgt := frameAt([]float64{0.1, 0.1}, r3.Vector{X: 0.2})

	test.That(t, transitionSteps(cfg, cur, tgt, &LiveState{}), test.ShouldEqual, 100)
}

func TestTransitionStepsHighDifference(t *testing.T) {
	cfg := testConfig()
	cur := frameAt([]float64{0, 0}, r3.Vector{})
	tgt := frameAt([]float64{0, 0}, r3.Vector{X: 2})

	// root distance 2 > threshold 1 doubles the base count
	test.That(t, transitionSteps(cfg, cur, tgt, &LiveState{}), test.ShouldEqual, 200)

	// without the adaptive flag the score is ignored
	cfg.AdaptiveTransition = false
	test.That(t, transitionSteps(cfg, cur, tgt, &LiveState{}), test.ShouldEqual, 100)
}

func TestTransitionStepsVelocityScaling(t *testing.T) {
	cfg := testConfig()
	cfg.AdaptiveTransition = false
	cfg.VelocityAware = true
	cfg.VelocityScale = 0.5
	cur := frameAt([]float64{0, 0}, r3.Vector{})
	tgt := frameAt([]float64{0, 0}, r3.Vector{})

	slow := &LiveState{RootLinVel: r3.Vector{X: 1}}
	fast := &LiveState{RootLinVel: r3.Vector{X: 3}}
	nSlow := transitionSteps(cfg, cur, tgt, slow)
	nFast := transitionSteps(cfg, cur, tgt, fast)
	test.That(t, nSlow, test.ShouldEqual, 150)
	test.That(t, nFast, test.ShouldEqual, 250)
	test.That(t, nFast, test.ShouldBeGreaterThan, nSlow)
}

func TestTransitionStepsClamped(t *testing.T) {
	cfg := testConfig()
	cfg.TransitionSteps = 2
	cur := frameAt([]float64{0, 0}, r3.Vector{})
	tgt := frameAt([]float64{0, 0}, r3.Vector{})
	test.That(t, transitionSteps(cfg, cur, tgt, &LiveState{}), test.ShouldEqual, cfg.MinTransitionSteps)

	cfg.TransitionSteps = 250
	tgt = frameAt([]float64{0, 0}, r3.Vector{X: 5})
	test.That(t, transitionSteps(cfg, cur, tgt, &LiveState{}), test.ShouldEqual, cfg.MaxTransitionSteps)
}

func TestPoseDiffScore(t *testing.T) {
	cur := frameAt([]float64{0, 1}, r3.Vector{})
	tgt := frameAt([]float64{1, 0}, r3.Vector{X: 3, Y: 4})
	// mean abs joint diff 1, root distance 5
	test.That(t, poseDiffScore(cur, tgt), test.ShouldAlmostEqual, 6)
}

func TestSynthesizeTransition(t *testing.T) {
	cur := frameAt([]float64{0, 0}, r3.Vector{})
	tgt := &Frame{
		JointPos: []float64{1, -1},
		RootPos:  r3.Vector{X: 4},
		RootQuat: yawQuat(0.5),
	}

	frames := synthesizeTransition(cur, tgt, 3)
	test.That(t, frames, test.ShouldHaveLength, 3)

	// fractions are i/(n+1): the first frame is one uniform step past "now"
	// and the last stops short of the target
	test.That(t, frames[0].RootPos.X, test.ShouldAlmostEqual, 1)
	test.That(t, frames[1].RootPos.X, test.ShouldAlmostEqual, 2)
	test.That(t, frames[2].RootPos.X, test.ShouldAlmostEqual, 3)
	test.That(t, frames[2].JointPos[0], test.ShouldAlmostEqual, 0.75)
	test.That(t, frames[2].JointPos[1], test.ShouldAlmostEqual, -0.75)

	// orientation follows the same fractions spherically
	test.That(t, frames[1].RootQuat.Real, test.ShouldAlmostEqual, yawQuat(0.25).Real, 1e-9)
	test.That(t, frames[1].RootQuat.Kmag, test.ShouldAlmostEqual, yawQuat(0.25).Kmag, 1e-9)
}

func TestSynthesizeTransitionDirectCut(t *testing.T) {
	cur := frameAt([]float64{0}, r3.Vector{})
	tgt := frameAt([]float64{1}, r3.Vector{X: 1})
	test.That(t, synthesizeTransition(cur, tgt, 0), test.ShouldHaveLength, 0)
}

func TestJointMapper(t *testing.T) {
	m := newJointMapper([]string{"hip", "knee", "ankle"}, []string{"knee", "hip"})

	// maps by name, not position; unmatched dataset joints stay zero
	out := m.datasetJoints([]float64{0.2, 0.7})
	test.That(t, out, test.ShouldResemble, []float64{0.7, 0.2, 0})

	// short policy vectors never panic
	out = m.datasetJoints([]float64{0.2})
	test.That(t, out, test.ShouldResemble, []float64{0, 0.2, 0})
}
