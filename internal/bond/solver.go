package bond

import (
	"math"

	"benritz/fundcalc/internal/types"
)

const (
	DefaultTolerance     = 1e-10
	DefaultMaxIterations = 100

	// minDerivative guards the Newton step against a flat price curve.
	minDerivative = 1e-12

	maxHalvings = 60
)

// Solver holds the root-finding budget shared by YTM and Z-spread.
//
//	Tolerance:     relative price error accepted as converged.
//	MaxIterations: Newton-Raphson steps before giving up.
type Solver struct {
	Tolerance     float64
	MaxIterations int
}

var DefaultSolver = Solver{
	Tolerance:     DefaultTolerance,
	MaxIterations: DefaultMaxIterations,
}

func (s Solver) normalized() Solver {
	if !(s.Tolerance > 0) {
		s.Tolerance = DefaultTolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	return s
}

// newton finds x such that f(x) == target using Newton-Raphson.
//
//	f:      returns the function value and its first derivative at x.
//	target: value to solve for.
//	x:      initial guess.
//	valid:  reports whether an iterate lies in the function's domain. A
//	        step that would leave the domain is halved until it does not.
//
// Returns:
//
//	The root, or ErrNoConvergence (possibly wrapped) on failure.
func (s Solver) newton(f func(x float64) (float64, float64), target, x float64, valid func(float64) bool) (float64, error) {
	s = s.normalized()
	tolerance := s.Tolerance * math.Max(1, math.Abs(target))

	for range s.MaxIterations {
		if !valid(x) {
			return 0, types.ErrNoConvergence
		}

		v, d := f(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, types.ErrNoConvergence
		}

		dv := v - target
		if math.Abs(dv) < tolerance {
			return x, nil
		}

		if math.Abs(d) < minDerivative || math.IsNaN(d) {
			return 0, types.ErrDerivativeTooSmall
		}

		// halve the step until the iterate stays in the domain
		step := dv / d
		for range maxHalvings {
			if valid(x - step) {
				break
			}
			step /= 2
		}
		x = x - step

		if math.Abs(step) < 1e-15*math.Max(1, math.Abs(x)) {
			if valid(x) {
				return x, nil
			}
			return 0, types.ErrNoConvergence
		}
	}

	return 0, types.ErrNoConvergence
}
