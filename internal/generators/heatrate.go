package generators

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/gridprep/internal/config"
	"github.com/lox/gridprep/internal/metrics"
	"github.com/lox/gridprep/internal/models"
)

var nanCurve = [3]float64{math.NaN(), math.NaN(), math.NaN()}

func hasCurve(h [3]float64) bool {
	return !math.IsNaN(h[0]) && !math.IsNaN(h[1]) && !math.IsNaN(h[2])
}

// FitHeatRate fits heat input = h0 + h1·P + h2·P² (MMBtu/h against MW) by
// non-negative least squares. It returns NaN coefficients and a reason when
// there are too few samples or too few distinct loads.
func FitHeatRate(samples []Sample, cfg config.HeatRateFit) ([3]float64, string) {
	if len(samples) < cfg.MinSamples {
		return nanCurve, "too_few_samples"
	}
	distinct := map[float64]bool{}
	x := make([]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i], y[i] = s.LoadMW, s.HeatMMBtu
		distinct[s.LoadMW] = true
	}
	if len(distinct) < cfg.MinDistinctLoad {
		return nanCurve, "too_few_loads"
	}

	// Scale load to [0, 1] so the P² column stays well conditioned.
	scale := floats.Max(x)
	a := mat.NewDense(len(x), 3, nil)
	for i, xi := range x {
		u := xi / scale
		a.Set(i, 0, 1)
		a.Set(i, 1, u)
		a.Set(i, 2, u*u)
	}
	b := nnls(a, mat.NewVecDense(len(y), y))
	return [3]float64{b[0], b[1] / scale, b[2] / (scale * scale)}, ""
}

// nnls solves min ||a·b - y|| subject to b >= 0. With few columns the
// optimum is found exactly by solving the unconstrained problem on every
// subset of columns and keeping the best non-negative solution.
func nnls(a *mat.Dense, y *mat.VecDense) []float64 {
	m, n := a.Dims()
	best := make([]float64, n)
	bestRes := floats.Dot(y.RawVector().Data, y.RawVector().Data)

	for mask := 1; mask < 1<<n; mask++ {
		var cols []int
		for j := 0; j < n; j++ {
			if mask&(1<<j) != 0 {
				cols = append(cols, j)
			}
		}
		sub := mat.NewDense(m, len(cols), nil)
		for i := 0; i < m; i++ {
			for k, j := range cols {
				sub.Set(i, k, a.At(i, j))
			}
		}
		var sol mat.VecDense
		if err := sol.SolveVec(sub, y); err != nil {
			continue
		}
		coef := make([]float64, n)
		feasible := true
		for k, j := range cols {
			v := sol.AtVec(k)
			if v < 0 {
				feasible = false
				break
			}
			coef[j] = v
		}
		if !feasible {
			continue
		}
		var fit mat.VecDense
		fit.MulVec(a, mat.NewVecDense(n, coef))
		fit.SubVec(&fit, y)
		res := mat.Dot(&fit, &fit)
		if res < bestRes {
			best, bestRes = coef, res
		}
	}
	return best
}

// EffectiveHeatRate is the marginal heat rate at the midpoint of the
// operating range, in MMBtu/MWh.
func EffectiveHeatRate(h [3]float64, pmax, pmin float64) float64 {
	return h[2]*(pmax+pmin) + h[1]
}

// SanityCheck reports whether a fitted curve lies in the plausible range
// for the unit's technology and size. Units without a configured range pass.
func SanityCheck(a *config.Assumptions, g models.Generator) bool {
	b, ok := a.HeatRateBound(g.Technology, g.PrimeMover, g.Pmax)
	if !ok {
		return true
	}
	hr := EffectiveHeatRate(g.HeatRate, g.Pmax, g.Pmin)
	return hr >= b.Low && hr <= b.High
}

type groupKey struct {
	tech models.Technology
	pm   models.PrimeMover
}

// Impute fills NaN heat-rate curves in place. Within each (technology,
// prime mover) group each coefficient is regressed linearly on Pmax over the
// units with valid curves. Groups with a single distinct Pmax use the group
// mean; groups with no valid curve fall back to the per-fuel default.
// Negative regressed coefficients are clamped to zero.
func Impute(gens []models.Generator, a *config.Assumptions) {
	groups := map[groupKey][]int{}
	for i, g := range gens {
		k := groupKey{g.Technology, g.PrimeMover}
		groups[k] = append(groups[k], i)
	}
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tech != keys[j].tech {
			return keys[i].tech < keys[j].tech
		}
		return keys[i].pm < keys[j].pm
	})

	var regressed, averaged, fallback, clamped int
	for _, k := range keys {
		var xs []float64
		var ys [3][]float64
		var missing []int
		distinct := map[float64]bool{}
		for _, i := range groups[k] {
			if hasCurve(gens[i].HeatRate) {
				xs = append(xs, gens[i].Pmax)
				distinct[gens[i].Pmax] = true
				for c := 0; c < 3; c++ {
					ys[c] = append(ys[c], gens[i].HeatRate[c])
				}
			} else {
				missing = append(missing, i)
			}
		}
		if len(missing) == 0 {
			continue
		}
		switch {
		case len(distinct) >= 2:
			var alpha, beta [3]float64
			for c := 0; c < 3; c++ {
				alpha[c], beta[c] = stat.LinearRegression(xs, ys[c], nil, false)
			}
			for _, i := range missing {
				for c := 0; c < 3; c++ {
					v := alpha[c] + beta[c]*gens[i].Pmax
					if v < 0 {
						v = 0
						clamped++
					}
					gens[i].HeatRate[c] = v
				}
			}
			regressed += len(missing)
		case len(xs) > 0:
			var mean [3]float64
			for c := 0; c < 3; c++ {
				mean[c] = stat.Mean(ys[c], nil)
			}
			for _, i := range missing {
				gens[i].HeatRate = mean
			}
			averaged += len(missing)
		default:
			for _, i := range missing {
				gens[i].HeatRate = a.FallbackHeatRate[gens[i].Fuel].Array()
			}
			fallback += len(missing)
		}
	}
	metrics.Impute(stage, "heat_rate_regression", regressed)
	metrics.Impute(stage, "heat_rate_group_mean", averaged)
	metrics.Impute(stage, "heat_rate_fuel_default", fallback)
	metrics.Impute(stage, "heat_rate_clamped", clamped)
}
