package motionclip

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Smooth returns a copy of the clip with a centered moving average applied to
// the joint and root position channels. Orientation is left untouched;
// averaging quaternions component-wise is not a valid rotation blend.
// The window is forced odd and at least 3. Clips shorter than the window are
// returned unchanged.
func Smooth(clip *Clip, window int) *Clip {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	n := clip.Len()
	if n < window {
		return clip
	}
	half := window / 2

	out := &Clip{
		JointPos: make([][]float64, n),
		RootPos:  make([]r3.Vector, n),
		RootQuat: make([]quat.Number, n),
	}
	copy(out.RootQuat, clip.RootQuat)

	nJoints := clip.NJoints()
	for i := 0; i < n; i++ {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		count := float64(hi - lo + 1)

		joints := make([]float64, nJoints)
		var root r3.Vector
		for k := lo; k <= hi; k++ {
			for j := 0; j < nJoints; j++ {
				joints[j] += clip.JointPos[k][j]
			}
			root = root.Add(clip.RootPos[k])
		}
		for j := 0; j < nJoints; j++ {
			joints[j] /= count
		}
		out.JointPos[i] = joints
		out.RootPos[i] = root.Mul(1 / count)
	}
	return out
}
