// Package playback produces the per-tick reference frames a tracking
// controller follows. Given the robot's live state and a clip from the
// motion library, it aligns the clip to the robot's current heading and
// position, synthesizes a blend-in transition, and plays the concatenated
// sequence back one frame per simulation tick.
package playback

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// Default tuning for the transition planner.
const (
	DefaultTransitionSteps    = 100
	DefaultMinTransitionSteps = 10
	DefaultMaxTransitionSteps = 300
	DefaultPoseDiffThreshold  = 1.0
	DefaultHighDiffMultiplier = 2.0
	DefaultSmoothWindow       = 5
)

// Config holds the construction options for a playback Controller.
type Config struct {
	// TransitionSteps is the base number of synthesized frames bridging the
	// live pose into a clip.
	TransitionSteps    int `json:"transition_steps,omitempty"`
	MinTransitionSteps int `json:"min_transition_steps,omitempty"`
	MaxTransitionSteps int `json:"max_transition_steps,omitempty"`

	// AdaptiveTransition scales the transition length by how far the robot
	// is from the clip's first frame.
	AdaptiveTransition bool    `json:"adaptive_transition"`
	PoseDiffThreshold  float64 `json:"pose_diff_threshold,omitempty"`
	HighDiffMultiplier float64 `json:"high_diff_multiplier,omitempty"`

	// VelocityAware lengthens transitions proportionally to the current
	// root speed.
	VelocityAware bool    `json:"velocity_aware"`
	VelocityScale float64 `json:"velocity_scale,omitempty"`

	// Smooth enables moving-average smoothing of possibly noisy clips at
	// ingestion time.
	Smooth       bool `json:"smooth"`
	SmoothWindow int  `json:"smooth_window,omitempty"`

	// DatasetJointNames orders the joints as clips store them;
	// PolicyJointNames orders them as the live state reports them.
	DatasetJointNames []string `json:"dataset_joint_names"`
	PolicyJointNames  []string `json:"policy_joint_names"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (cfg *Config) Validate(path string) error {
	var err error
	if len(cfg.DatasetJointNames) == 0 {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "dataset_joint_names"))
	}
	if len(cfg.PolicyJointNames) == 0 {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "policy_joint_names"))
	}
	if cfg.TransitionSteps < 0 || cfg.MinTransitionSteps < 0 || cfg.MaxTransitionSteps < 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path, errors.New("transition step counts cannot be negative")))
	}
	if cfg.HighDiffMultiplier < 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path, errors.New("high_diff_multiplier cannot be negative")))
	}
	if cfg.VelocityScale < 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path, errors.New("velocity_scale cannot be negative")))
	}
	if err != nil {
		return err
	}

	if cfg.TransitionSteps == 0 {
		cfg.TransitionSteps = DefaultTransitionSteps
	}
	if cfg.MinTransitionSteps == 0 {
		cfg.MinTransitionSteps = DefaultMinTransitionSteps
	}
	if cfg.MaxTransitionSteps == 0 {
		cfg.MaxTransitionSteps = DefaultMaxTransitionSteps
	}
	if cfg.PoseDiffThreshold == 0 {
		cfg.PoseDiffThreshold = DefaultPoseDiffThreshold
	}
	if cfg.HighDiffMultiplier == 0 {
		cfg.HighDiffMultiplier = DefaultHighDiffMultiplier
	}
	if cfg.SmoothWindow == 0 {
		cfg.SmoothWindow = DefaultSmoothWindow
	}
	if cfg.MinTransitionSteps > cfg.MaxTransitionSteps {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("min_transition_steps %d exceeds max_transition_steps %d",
				cfg.MinTransitionSteps, cfg.MaxTransitionSteps))
	}
	return nil
}
