package report

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// minPairs is the smallest sample a correlation is reported for.
const minPairs = 3

// Correlation holds Pearson and Spearman coefficients of one pair of
// columns with their two-sided p-values.
type Correlation struct {
	X, Y      string
	N         int
	Pearson   float64
	PearsonP  float64
	Spearman  float64
	SpearmanP float64
	// Note explains a NaN result.
	Note string
}

// Correlate computes both coefficients. Fewer than three pairs or a
// constant column yield NaN with a note instead of an error.
func Correlate(xName, yName string, x, y []float64) Correlation {
	c := Correlation{X: xName, Y: yName, N: min(len(x), len(y))}
	x, y = x[:c.N], y[:c.N]
	nan := math.NaN()
	c.Pearson, c.PearsonP, c.Spearman, c.SpearmanP = nan, nan, nan, nan
	switch {
	case c.N < minPairs:
		c.Note = "fewer than 3 pairs"
		return c
	case constant(x) || constant(y):
		c.Note = "zero variance"
		return c
	}
	c.Pearson = stat.Correlation(x, y, nil)
	c.PearsonP = corrPValue(c.Pearson, c.N)
	c.Spearman = stat.Correlation(Ranks(x), Ranks(y), nil)
	c.SpearmanP = corrPValue(c.Spearman, c.N)
	return c
}

func constant(xs []float64) bool {
	for _, v := range xs[1:] {
		if v != xs[0] {
			return false
		}
	}
	return true
}

// corrPValue is the two-sided p-value of r under H0: rho = 0, using
// Student's t with n-2 degrees of freedom.
func corrPValue(r float64, n int) float64 {
	if math.IsNaN(r) {
		return math.NaN()
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	return twoSided(t, df)
}

func twoSided(t, df float64) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

// Ranks returns fractional ranks starting at 1; ties share the mean of
// the ranks they span.
func Ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	ranks := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		r := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = r
		}
		i = j + 1
	}
	return ranks
}

// TTest is Welch's unequal-variance t-test.
type TTest struct {
	NA, NB       int
	MeanA, MeanB float64
	T, DF, P     float64
	Note         string
}

// Welch compares the means of a and b. Each group needs two values.
func Welch(a, b []float64) TTest {
	res := TTest{NA: len(a), NB: len(b), T: math.NaN(), DF: math.NaN(), P: math.NaN()}
	res.MeanA, res.MeanB = math.NaN(), math.NaN()
	if len(a) > 0 {
		res.MeanA = stat.Mean(a, nil)
	}
	if len(b) > 0 {
		res.MeanB = stat.Mean(b, nil)
	}
	if len(a) < 2 || len(b) < 2 {
		res.Note = "insufficient groups"
		return res
	}
	va, vb := stat.Variance(a, nil)/float64(len(a)), stat.Variance(b, nil)/float64(len(b))
	if va+vb == 0 {
		res.Note = "zero variance"
		return res
	}
	res.T = (res.MeanA - res.MeanB) / math.Sqrt(va+vb)
	res.DF = (va + vb) * (va + vb) / (va*va/float64(len(a)-1) + vb*vb/float64(len(b)-1))
	res.P = twoSided(res.T, res.DF)
	return res
}

// Summary describes one numeric column.
type Summary struct {
	Name      string
	Count     int
	Mean, Std float64
	Min, Max  float64
}

// Describe summarises xs. Std is the sample deviation, 0 for a single
// value; an empty column reports NaN.
func Describe(name string, xs []float64) Summary {
	s := Summary{Name: name, Count: len(xs)}
	if len(xs) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Max = nan, nan, nan, nan
		return s
	}
	s.Mean = stat.Mean(xs, nil)
	if len(xs) > 1 {
		s.Std = stat.StdDev(xs, nil)
	}
	s.Min, s.Max = floats.Min(xs), floats.Max(xs)
	return s
}

// Quantile returns the empirical p-quantile of xs, NaN when empty.
func Quantile(p float64, xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
