package motionclip

import (
	"sort"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// Library maps clip names to validated clips. It always contains a clip
// named "default"; construction fails without one. Entries are only ever
// replaced wholesale, never mutated in place.
type Library struct {
	mu      sync.RWMutex
	clips   map[string]*Clip
	nJoints int
	logger  golog.Logger
}

// AddResult classifies the outcome of an AddMotions call by clip name.
// Names are sorted. None of the outcomes are errors; callers in the
// simulation loop inspect the sets instead of unwinding.
type AddResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
	Invalid []string `json:"invalid"`
}

// NewLibrary builds a library from the initial raw clips. The "default"
// entry is mandatory and must validate; there is no rest state to fall back
// to without it. nJoints of zero lets the default clip set the joint width.
func NewLibrary(initial map[string]RawClip, nJoints int, logger golog.Logger) (*Library, error) {
	raw, ok := initial[DefaultName]
	if !ok {
		return nil, errors.Errorf("initial motions must include a %q clip", DefaultName)
	}
	def, err := raw.Parse(nJoints)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %q clip", DefaultName)
	}

	lib := &Library{
		clips:   map[string]*Clip{DefaultName: def},
		nJoints: def.NJoints(),
		logger:  logger,
	}
	rest := make(map[string]RawClip, len(initial)-1)
	for name, rc := range initial {
		if name == DefaultName {
			continue
		}
		rest[name] = rc
	}
	res := lib.AddMotions(rest, false)
	if len(res.Invalid) > 0 {
		logger.Warnw("some initial motions failed validation", "invalid", res.Invalid)
	}
	return lib, nil
}

// NJoints returns the joint vector width every clip in the library conforms to.
func (l *Library) NJoints() int {
	return l.nJoints
}

// AddMotions validates each candidate and inserts the ones that pass.
// Candidates whose name already exists are skipped unless overwrite is set;
// candidates that fail validation are classified invalid and dropped.
// Accepted clips replace or insert atomically with respect to readers.
func (l *Library) AddMotions(candidates map[string]RawClip, overwrite bool) AddResult {
	var res AddResult

	l.mu.Lock()
	for name, rc := range candidates {
		if _, exists := l.clips[name]; exists && !overwrite {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		clip, err := rc.Parse(l.nJoints)
		if err != nil {
			l.logger.Debugw("rejecting motion", "name", name, "error", err)
			res.Invalid = append(res.Invalid, name)
			continue
		}
		l.clips[name] = clip
		res.Added = append(res.Added, name)
	}
	l.mu.Unlock()

	sort.Strings(res.Added)
	sort.Strings(res.Skipped)
	sort.Strings(res.Invalid)
	return res
}

// Motion returns the named clip, or false if the library does not know it.
func (l *Library) Motion(name string) (*Clip, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	clip, ok := l.clips[name]
	return clip, ok
}

// Default returns the mandatory rest-pose clip.
func (l *Library) Default() *Clip {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.clips[DefaultName]
}

// AvailableMotions returns all known clip names, sorted. The ordering is for
// stable presentation only.
func (l *Library) AvailableMotions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.clips))
	for name := range l.clips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
