package playback

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// LiveState is the per-tick snapshot of the robot's physical state as read
// from the physics engine. Joint values are in policy ordering.
type LiveState struct {
	JointPos   []float64   `json:"joint_pos"`
	JointVel   []float64   `json:"joint_vel,omitempty"`
	RootPos    r3.Vector   `json:"root_pos"`
	RootQuat   quat.Number `json:"root_quat"`
	RootLinVel r3.Vector   `json:"root_lin_vel,omitempty"`
	RootAngVel r3.Vector   `json:"root_ang_vel,omitempty"`
}

// Frame is one reference frame served to the tracking controller: joint
// targets in dataset ordering plus the root pose.
type Frame struct {
	JointPos []float64   `json:"joint_pos"`
	RootPos  r3.Vector   `json:"root_pos"`
	RootQuat quat.Number `json:"root_quat"`
}

// State is an immutable snapshot of the controller for pollers (UI,
// telemetry). The core keeps no subscriber list; anything that wants this
// calls PlaybackState on its own cadence.
type State struct {
	CurrentName   string `json:"current_name"`
	CurrentDone   bool   `json:"current_done"`
	RefIdx        int    `json:"ref_idx"`
	RefLen        int    `json:"ref_len"`
	TransitionLen int    `json:"transition_len"`
	MotionLen     int    `json:"motion_len"`
	InTransition  bool   `json:"in_transition"`
	IsDefault     bool   `json:"is_default"`
}

// jointMapper carries the name-based permutation from policy joint ordering
// to dataset (clip) joint ordering. It is built once at construction;
// dataset joints with no policy counterpart stay zero rather than erroring.
type jointMapper struct {
	nJoints     int
	policyIndex []int // dataset index -> policy index, -1 when unmatched
}

func newJointMapper(datasetNames, policyNames []string) *jointMapper {
	byName := make(map[string]int, len(policyNames))
	for i, name := range policyNames {
		byName[name] = i
	}
	idx := make([]int, len(datasetNames))
	for i, name := range datasetNames {
		if j, ok := byName[name]; ok {
			idx[i] = j
		} else {
			idx[i] = -1
		}
	}
	return &jointMapper{nJoints: len(datasetNames), policyIndex: idx}
}

// datasetJoints re-expresses a policy-ordered joint vector in dataset
// ordering. Out-of-range policy indices are treated as unmatched.
func (m *jointMapper) datasetJoints(policy []float64) []float64 {
	out := make([]float64, m.nJoints)
	for i, j := range m.policyIndex {
		if j >= 0 && j < len(policy) {
			out[i] = policy[j]
		}
	}
	return out
}
