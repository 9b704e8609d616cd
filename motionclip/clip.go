// Package motionclip owns the validated motion clip representation and the
// library of named clips available for playback. Clips from every source
// (base configuration, file upload, the generation gateway) are unified here
// at the ingestion boundary; downstream playback code is agnostic to
// provenance.
package motionclip

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// DefaultName is the name of the mandatory rest-pose clip. A library cannot
// be constructed without it.
const DefaultName = "default"

// Tolerance on |norm - 1| for root quaternions at ingestion. Accepted clips
// are stored as-is and never re-normalized.
const unitQuatTolerance = 1e-3

// Clip is a fixed-length motion expressed as parallel per-frame sequences of
// joint angles (radians, dataset ordering), root position (world units), and
// root orientation (unit quaternions).
type Clip struct {
	JointPos [][]float64
	RootPos  []r3.Vector
	RootQuat []quat.Number
}

// Len returns the number of frames in the clip.
func (c *Clip) Len() int {
	return len(c.JointPos)
}

// NJoints returns the width of the joint vectors.
func (c *Clip) NJoints() int {
	if len(c.JointPos) == 0 {
		return 0
	}
	return len(c.JointPos[0])
}

// First returns the first frame of the clip.
func (c *Clip) First() ([]float64, r3.Vector, quat.Number) {
	return c.JointPos[0], c.RootPos[0], c.RootQuat[0]
}

// RawClip is the wire form a clip arrives in, from the generation gateway or
// a file upload. Field names follow the upstream motion data schema.
type RawClip struct {
	Name       string      `json:"name,omitempty"`
	FPS        float64     `json:"fps,omitempty"`
	JointPos   [][]float64 `json:"joint_pos"`
	RootPos    [][]float64 `json:"root_pos"`
	RootQuat   [][]float64 `json:"root_quat"`
	FrameCount int         `json:"frame_count,omitempty"`
	Duration   float64     `json:"duration,omitempty"`
	CreatedAt  string      `json:"created_at,omitempty"`
}

// Parse validates the raw clip against the schema and returns the validated
// form. nJoints is the expected joint vector width; zero means the first
// frame decides. Any missing field, ragged sequence, dimension mismatch, or
// non-unit quaternion rejects the whole clip.
func (rc *RawClip) Parse(nJoints int) (*Clip, error) {
	if len(rc.JointPos) == 0 {
		return nil, errors.New("joint_pos missing or empty")
	}
	if len(rc.RootPos) == 0 {
		return nil, errors.New("root_pos missing or empty")
	}
	if len(rc.RootQuat) == 0 {
		return nil, errors.New("root_quat missing or empty")
	}
	n := len(rc.JointPos)
	if len(rc.RootPos) != n || len(rc.RootQuat) != n {
		return nil, errors.Errorf(
			"sequence lengths disagree: joint_pos=%d root_pos=%d root_quat=%d",
			n, len(rc.RootPos), len(rc.RootQuat))
	}
	if nJoints == 0 {
		nJoints = len(rc.JointPos[0])
	}
	if nJoints == 0 {
		return nil, errors.New("joint vectors are empty")
	}

	clip := &Clip{
		JointPos: make([][]float64, 0, n),
		RootPos:  make([]r3.Vector, 0, n),
		RootQuat: make([]quat.Number, 0, n),
	}
	for i := 0; i < n; i++ {
		jp := rc.JointPos[i]
		if len(jp) != nJoints {
			return nil, errors.Errorf("frame %d: joint vector has %d values, expected %d", i, len(jp), nJoints)
		}
		rp := rc.RootPos[i]
		if len(rp) != 3 {
			return nil, errors.Errorf("frame %d: root_pos has %d values, expected 3", i, len(rp))
		}
		rq := rc.RootQuat[i]
		if len(rq) != 4 {
			return nil, errors.Errorf("frame %d: root_quat has %d values, expected 4", i, len(rq))
		}
		q := quat.Number{Real: rq[0], Imag: rq[1], Jmag: rq[2], Kmag: rq[3]}
		norm := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
		if math.Abs(norm-1) > unitQuatTolerance {
			return nil, errors.Errorf("frame %d: root_quat is not a unit quaternion (norm %f)", i, norm)
		}

		joints := make([]float64, nJoints)
		copy(joints, jp)
		clip.JointPos = append(clip.JointPos, joints)
		clip.RootPos = append(clip.RootPos, r3.Vector{X: rp[0], Y: rp[1], Z: rp[2]})
		clip.RootQuat = append(clip.RootQuat, q)
	}
	return clip, nil
}
