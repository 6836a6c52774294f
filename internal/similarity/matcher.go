package similarity

// Candidate is a local entity that a remote record may resolve to.
type Candidate struct {
	ID   string
	Name string
}

// Matcher picks the closest candidate for a name.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a matcher. Thresholds outside (0, 1] fall back to
// DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold reports the minimum accepted ratio.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Exact returns the first candidate whose name equals name byte for byte.
func (m *Matcher) Exact(name string, candidates []Candidate) (Candidate, bool) {
	if name == "" {
		return Candidate{}, false
	}
	for _, c := range candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}

// Best returns the highest-scoring candidate at or above the threshold. Ties
// keep the earliest candidate.
func (m *Matcher) Best(name string, candidates []Candidate) (Candidate, float64, bool) {
	var (
		best  Candidate
		score float64
		found bool
	)
	for _, c := range candidates {
		r := Ratio(name, c.Name)
		if r >= m.threshold && r > score {
			best, score, found = c, r, true
		}
	}
	return best, score, found
}
