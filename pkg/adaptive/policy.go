// Package adaptive maintains per-image error heat maps and selects the
// pixels to render each training step. Four selection policies are
// offered: uniform, multinomial, rejection and Metropolis-Hastings.
package adaptive

import "fmt"

// Policy identifies a pixel selection strategy.
type Policy int

const (
	// PolicyUniform draws pixels uniformly without replacement.
	PolicyUniform Policy = iota
	// PolicyMultinomial draws pixels without replacement with
	// probability proportional to the probability map.
	PolicyMultinomial
	// PolicyRejection accepts pixels whose uniform threshold falls
	// below their probability, retrying up to a budget.
	PolicyRejection
	// PolicyMetropolis evolves a persistent pixel set by a Gaussian
	// random walk with probability-ratio acceptance.
	PolicyMetropolis
)

// ParsePolicy maps a policy name to its enum value. An empty name and
// "none" select the uniform policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "none", "uniform":
		return PolicyUniform, nil
	case "multinomial":
		return PolicyMultinomial, nil
	case "rejection":
		return PolicyRejection, nil
	case "metropolis-hastings", "mh":
		return PolicyMetropolis, nil
	}
	return 0, fmt.Errorf("unknown sampling policy %q", name)
}

func (p Policy) String() string {
	switch p {
	case PolicyUniform:
		return "uniform"
	case PolicyMultinomial:
		return "multinomial"
	case PolicyRejection:
		return "rejection"
	case PolicyMetropolis:
		return "metropolis-hastings"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// Metric selects the per-pixel error measure.
type Metric int

const (
	// MetricL2 is the squared color difference, averaged over channels.
	MetricL2 Metric = iota
	// MetricL1 is the absolute color difference, averaged over channels.
	MetricL1
)

// ParseMetric maps a metric name to its enum value; empty defaults to L2.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "", "none", "l2", "L2":
		return MetricL2, nil
	case "l1", "L1":
		return MetricL1, nil
	}
	return 0, fmt.Errorf("unknown error metric %q", name)
}

func (m Metric) String() string {
	if m == MetricL1 {
		return "l1"
	}
	return "l2"
}

// UpdateMethod controls how a pixel's heat feeds its map value.
type UpdateMethod int

const (
	// UpdateValue uses the latest error directly.
	UpdateValue UpdateMethod = iota
	// UpdateAverage uses accumulated heat divided by update count.
	UpdateAverage
)

// ParseUpdateMethod maps an update method name to its enum value.
func ParseUpdateMethod(name string) (UpdateMethod, error) {
	switch name {
	case "", "none", "value":
		return UpdateValue, nil
	case "avg", "average":
		return UpdateAverage, nil
	}
	return 0, fmt.Errorf("unknown update method %q", name)
}

func (u UpdateMethod) String() string {
	if u == UpdateAverage {
		return "average"
	}
	return "value"
}

// ProbMethod controls how a map value becomes a sampling probability.
type ProbMethod int

const (
	// ProbValue passes the value through unchanged.
	ProbValue ProbMethod = iota
	// ProbExponential applies exp(weightExponential * value).
	ProbExponential
)

// ParseProbMethod maps a probability method name to its enum value.
func ParseProbMethod(name string) (ProbMethod, error) {
	switch name {
	case "", "none", "value":
		return ProbValue, nil
	case "exp", "exponential":
		return ProbExponential, nil
	}
	return 0, fmt.Errorf("unknown probability method %q", name)
}

func (p ProbMethod) String() string {
	if p == ProbExponential {
		return "exponential"
	}
	return "value"
}

// InitMethod selects how maps are seeded before training.
type InitMethod int

const (
	// InitNone keeps the defaults: zero heat, unit probability.
	InitNone InitMethod = iota
	// InitLoss seeds heat from a full render's per-pixel loss
	// (performed by the caller through UpdateFull).
	InitLoss
	// InitEdge seeds heat and probability from the ground-truth
	// image's edge magnitude.
	InitEdge
)

// ParseInitMethod maps an initialization mode name to its enum value.
func ParseInitMethod(name string) (InitMethod, error) {
	switch name {
	case "", "none":
		return InitNone, nil
	case "loss":
		return InitLoss, nil
	case "edge":
		return InitEdge, nil
	}
	return 0, fmt.Errorf("unknown initialization mode %q", name)
}

func (m InitMethod) String() string {
	switch m {
	case InitLoss:
		return "loss"
	case InitEdge:
		return "edge"
	}
	return "none"
}
