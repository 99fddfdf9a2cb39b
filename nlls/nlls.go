// Package nlls implements a damped least-squares (Levenberg-Marquardt)
// solver for small dense nonlinear problems, with optional robust losses
// that bound the influence of outlying residuals.
package nlls

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Loss selects how squared residuals are weighted in the objective.
type Loss string

const (
	// LinearLoss is the plain sum of squared residuals.
	LinearLoss = Loss("linear")
	// SoftL1Loss is ρ(z) = 2(√(1+z) − 1), a smooth approximation of the
	// absolute-value loss that down-weights large residuals.
	SoftL1Loss = Loss("soft_l1")
)

// Problem is a vector residual function to be minimized in the least-squares
// sense. The residual dimension must stay constant across evaluations.
type Problem struct {
	Residuals func(x []float64) ([]float64, error)
}

// Settings are the solver tuning constants.
type Settings struct {
	MaxIterations int
	// CostTolerance stops the solve when the relative cost decrease of an
	// accepted step falls below it.
	CostTolerance float64
	// GradientTolerance stops the solve when the max absolute component of
	// the weighted gradient falls below it.
	GradientTolerance float64
	// RobustScale is the residual magnitude at which the robust loss starts
	// to saturate. Ignored for LinearLoss.
	RobustScale float64
	Loss        Loss
}

// DefaultSettings returns the solver constants used by the calibration
// pipeline: 200 iterations, 1e-10 tolerances, unit robust scale.
func DefaultSettings() *Settings {
	return &Settings{
		MaxIterations:     200,
		CostTolerance:     1e-10,
		GradientTolerance: 1e-10,
		RobustScale:       1.0,
		Loss:              SoftL1Loss,
	}
}

// Result reports the outcome of a solve.
type Result struct {
	X           []float64
	Residuals   []float64
	Cost        float64
	Iterations  int
	Evaluations int
	Converged   bool
	Message     string
}

const (
	dampingInit     = 1e-3
	dampingDecrease = 1.0 / 3.0
	dampingIncrease = 5.0
	dampingMax      = 1e12
)

// Solve minimizes the robustly weighted sum of squared residuals starting
// from x0. The returned error is non-nil only for setup or numerical
// failures; running out of iterations still returns a Result with
// Converged=false.
func Solve(problem Problem, x0 []float64, settings *Settings) (*Result, error) {
	if problem.Residuals == nil {
		return nil, errors.New("problem has no residual function")
	}
	if len(x0) == 0 {
		return nil, errors.New("empty initial parameter vector")
	}
	if settings == nil {
		settings = DefaultSettings()
	}

	x := append([]float64(nil), x0...)
	nParams := len(x)

	res := &Result{}
	evaluate := func(params []float64) ([]float64, error) {
		res.Evaluations++
		return problem.Residuals(params)
	}

	r, err := evaluate(x)
	if err != nil {
		return nil, errors.Wrap(err, "residual evaluation failed")
	}
	if len(r) < nParams {
		return nil, errors.Errorf("underdetermined problem: %d residuals for %d parameters", len(r), nParams)
	}
	cost := robustCost(r, settings)

	damping := dampingInit
	for iter := 0; iter < settings.MaxIterations; iter++ {
		res.Iterations = iter + 1

		jac, err := numericJacobian(evaluate, x, r)
		if err != nil {
			return nil, errors.Wrap(err, "jacobian evaluation failed")
		}
		weights := robustWeights(r, settings)
		wr := make([]float64, len(r))
		for i := range r {
			wr[i] = weights[i] * r[i]
			for j := 0; j < nParams; j++ {
				jac.Set(i, j, weights[i]*jac.At(i, j))
			}
		}

		// g = Jᵀr, H = JᵀJ
		g := mat.NewVecDense(nParams, nil)
		g.MulVec(jac.T(), mat.NewVecDense(len(wr), wr))
		if mat.Norm(g, math.Inf(1)) < settings.GradientTolerance {
			res.Converged = true
			res.Message = "gradient tolerance reached"
			break
		}
		var hess mat.Dense
		hess.Mul(jac.T(), jac)

		stepped := false
		for damping <= dampingMax {
			step, err := solveStep(&hess, g, damping)
			if err != nil {
				damping *= dampingIncrease
				continue
			}
			trial := make([]float64, nParams)
			for j := range trial {
				trial[j] = x[j] + step[j]
			}
			trialRes, err := evaluate(trial)
			if err != nil {
				// treat an unevaluable trial point as a rejected step
				damping *= dampingIncrease
				continue
			}
			trialCost := robustCost(trialRes, settings)
			if trialCost < cost {
				relDecrease := (cost - trialCost) / math.Max(cost, math.SmallestNonzeroFloat64)
				x, r = trial, trialRes
				cost = trialCost
				damping = math.Max(damping*dampingDecrease, 1e-12)
				stepped = true
				if relDecrease < settings.CostTolerance {
					res.Converged = true
					res.Message = "cost tolerance reached"
				}
				break
			}
			damping *= dampingIncrease
		}
		if !stepped {
			res.Converged = true
			res.Message = "no further progress possible"
			break
		}
		if res.Converged {
			break
		}
	}
	if !res.Converged {
		res.Message = "maximum iterations reached"
	}

	res.X = x
	res.Residuals = r
	res.Cost = cost
	return res, nil
}

func robustCost(r []float64, settings *Settings) float64 {
	if settings.Loss == LinearLoss {
		total := 0.0
		for _, ri := range r {
			total += ri * ri
		}
		return total
	}
	s2 := settings.RobustScale * settings.RobustScale
	total := 0.0
	for _, ri := range r {
		z := ri * ri / s2
		total += s2 * 2 * (math.Sqrt(1+z) - 1)
	}
	return total
}

// robustWeights returns √ρ'((r/s)²) per residual, the IRLS weights that make
// the weighted linear subproblem match the robust objective.
func robustWeights(r []float64, settings *Settings) []float64 {
	w := make([]float64, len(r))
	if settings.Loss == LinearLoss {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	s2 := settings.RobustScale * settings.RobustScale
	for i, ri := range r {
		z := ri * ri / s2
		w[i] = math.Sqrt(1 / math.Sqrt(1+z))
	}
	return w
}

// solveStep solves (H + λ·diag(H))·δ = -g.
func solveStep(hess *mat.Dense, g *mat.VecDense, damping float64) ([]float64, error) {
	n, _ := hess.Dims()
	damped := mat.DenseCopyOf(hess)
	for i := 0; i < n; i++ {
		d := hess.At(i, i)
		if d == 0 {
			d = 1
		}
		damped.Set(i, i, d+damping*d)
	}
	negG := mat.NewVecDense(n, nil)
	negG.ScaleVec(-1, g)
	var step mat.VecDense
	if err := step.SolveVec(damped, negG); err != nil {
		return nil, errors.Wrap(err, "normal equations are singular")
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = step.AtVec(i)
	}
	return out, nil
}

// numericJacobian computes a forward-difference Jacobian at x given the
// residuals r0 already evaluated there.
func numericJacobian(
	evaluate func([]float64) ([]float64, error),
	x, r0 []float64,
) (*mat.Dense, error) {
	nParams := len(x)
	jac := mat.NewDense(len(r0), nParams, nil)
	perturbed := append([]float64(nil), x...)
	for j := 0; j < nParams; j++ {
		h := math.Sqrt(2.2e-16) * math.Max(1, math.Abs(x[j]))
		perturbed[j] = x[j] + h
		rj, err := evaluate(perturbed)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot evaluate residuals at perturbed parameter %d", j)
		}
		if len(rj) != len(r0) {
			return nil, errors.Errorf("residual dimension changed from %d to %d", len(r0), len(rj))
		}
		perturbed[j] = x[j]
		for i := range rj {
			jac.Set(i, j, (rj[i]-r0[i])/h)
		}
	}
	return jac, nil
}
