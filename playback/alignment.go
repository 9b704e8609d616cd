package playback

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/motionref/motionclip"
	"go.viam.com/motionref/spatialmath"
)

// alignClip re-expresses a clip in a frame anchored to the robot's current
// horizontal position and heading, so the clip can be entered without a
// position or heading jump. Only yaw participates in the heading
// correction; roll and pitch of the live orientation are ignored. The
// clip's own height profile is preserved, and joint angles are copied
// unchanged since joint space is already robot-local.
func alignClip(clip *motionclip.Clip, live *LiveState) *motionclip.Clip {
	_, firstPos, firstQuat := clip.First()

	qDelta := spatialmath.OrientationBetween(
		spatialmath.YawQuaternion(firstQuat),
		spatialmath.YawQuaternion(live.RootQuat),
	)
	// horizontal anchor is "here"; vertical anchor is the clip's own origin
	offset := r3.Vector{X: live.RootPos.X, Y: live.RootPos.Y, Z: firstPos.Z}

	n := clip.Len()
	aligned := &motionclip.Clip{
		JointPos: make([][]float64, n),
		RootPos:  make([]r3.Vector, n),
		RootQuat: make([]quat.Number, n),
	}
	for i := 0; i < n; i++ {
		joints := make([]float64, len(clip.JointPos[i]))
		copy(joints, clip.JointPos[i])
		aligned.JointPos[i] = joints

		rel := clip.RootPos[i].Sub(firstPos)
		aligned.RootPos[i] = spatialmath.Rotate(qDelta, rel).Add(offset)
		aligned.RootQuat[i] = quat.Mul(qDelta, clip.RootQuat[i])
	}
	return aligned
}
