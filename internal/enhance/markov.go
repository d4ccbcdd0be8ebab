package enhance

import (
	"errors"
	"fmt"
	"math"

	"github.com/thebtf/forgecalc/pkg/models"
)

var (
	// ErrInvalidTarget reports a target level outside [1,20].
	ErrInvalidTarget = errors.New("target level out of range")
	// ErrInvalidProtection reports a protection threshold outside [0,target].
	ErrInvalidProtection = errors.New("protection threshold out of range")
)

// Result summarizes one absorbing-chain solve.
type Result struct {
	// Attempts is the expected number of enhancement actions to reach the
	// target from level 0. Always >= target.
	Attempts float64 `json:"attempts"`
	// Protects is the expected number of protection items consumed.
	Protects float64 `json:"protects"`
	// TotalSeconds is the expected wall time for the whole run.
	TotalSeconds float64 `json:"total_seconds"`
	// SuccessRates holds the effective per-level success probability for
	// levels 0..target-1.
	SuccessRates []float64 `json:"success_rates"`
}

// Solve computes expected attempts, protection consumption, and time for
// reaching target under protection threshold protectFrom, by inverting the
// fundamental matrix of the absorbing chain.
func Solve(m *Model, target, protectFrom int) (Result, error) {
	if target < 1 || target > models.MaxEnhancementLevel {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}
	if protectFrom < 0 || protectFrom > target {
		return Result{}, fmt.Errorf("%w: %d with target %d", ErrInvalidProtection, protectFrom, target)
	}

	// Transient submatrix Q over levels 0..target-1. The target row is
	// absorbing and omitted: probability mass leading there simply leaves
	// the transient system.
	q := make([][]float64, target)
	rates := make([]float64, target)
	for i := 0; i < target; i++ {
		row := make([]float64, target)
		succ := m.SuccessProb(i)
		rates[i] = succ
		skip := m.SkipProb(i)
		normal := succ - skip
		if i+1 < target {
			row[i+1] += normal
		}
		if skip > 0 && i+2 < target {
			row[i+2] += skip
		}
		fail := 1 - succ
		row[m.FailureDest(i, protectFrom)] += fail
		q[i] = row
	}

	visits, err := expectedVisits(q)
	if err != nil {
		return Result{}, err
	}

	attempts := 0.0
	for _, v := range visits {
		attempts += v
	}

	protects := 0.0
	if protectFrom > 0 {
		for i := protectFrom; i < target; i++ {
			protects += visits[i] * (1 - m.SuccessProb(i))
		}
	}

	return Result{
		Attempts:     attempts,
		Protects:     protects,
		TotalSeconds: attempts * m.AttemptSeconds(),
		SuccessRates: rates,
	}, nil
}

// expectedVisits returns row 0 of the fundamental matrix M = (I-Q)^-1, i.e.
// the expected visit count to each transient state starting from state 0.
// Rather than inverting the whole matrix it solves (I-Q)^T x = e0 with
// Gauss-Jordan elimination and partial pivoting; at <=20 states this is
// exact to machine precision.
func expectedVisits(q [][]float64) ([]float64, error) {
	n := len(q)

	// a = (I-Q)^T augmented with e0.
	a := make([][]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n+1)
		for j := 0; j < n; j++ {
			v := -q[j][i]
			if i == j {
				v = 1 - q[j][i]
			}
			a[i][j] = v
		}
	}
	a[0][n] = 1

	for col := 0; col < n; col++ {
		// Partial pivot.
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular transition system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]

		inv := 1 / a[col][col]
		for j := col; j <= n; j++ {
			a[col][j] *= inv
		}
		for r := 0; r < n; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for j := col; j <= n; j++ {
				a[r][j] -= f * a[col][j]
			}
		}
	}

	visits := make([]float64, n)
	for i := 0; i < n; i++ {
		visits[i] = a[i][n]
	}
	return visits, nil
}
