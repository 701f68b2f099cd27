// Package schedule implements the linear DDPM noise schedule: per-timestep
// noise variances and the cumulative signal-retention coefficients derived
// from them.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/ddpm/internal/tensor"
)

// Default linear schedule.
const (
	DefaultTimesteps = 1000
	DefaultBetaStart = 1e-4
	DefaultBetaEnd   = 2e-2
)

// ErrInvalidSchedule is returned by New for unusable parameters.
var ErrInvalidSchedule = errors.New("schedule: invalid parameters")

// Schedule holds the precomputed coefficient sequences, each of length
// Timesteps(). It is immutable after construction and safe to share.
type Schedule struct {
	timesteps int

	betas                     []float32
	alphas                    []float32
	alphasCumprod             []float32
	sqrtAlphasCumprod         []float32
	sqrtOneMinusAlphasCumprod []float32

	mu     sync.Mutex
	placed map[tensor.Device]*Coefficients
}

// New builds a schedule with betas spaced linearly from betaStart to betaEnd
// (both inclusive). Requires timesteps >= 1 and 0 < betaStart <= betaEnd < 1.
func New(timesteps int, betaStart, betaEnd float64) (*Schedule, error) {
	if timesteps < 1 {
		return nil, fmt.Errorf("%w: timesteps must be >= 1, got %d", ErrInvalidSchedule, timesteps)
	}
	if !(betaStart > 0 && betaStart <= betaEnd && betaEnd < 1) {
		return nil, fmt.Errorf("%w: need 0 < beta_start <= beta_end < 1, got %g..%g", ErrInvalidSchedule, betaStart, betaEnd)
	}

	betas := make([]float64, timesteps)
	if timesteps == 1 {
		betas[0] = betaStart
	} else {
		floats.Span(betas, betaStart, betaEnd)
	}

	alphas := make([]float64, timesteps)
	for i, b := range betas {
		alphas[i] = 1 - b
	}
	alphasCumprod := floats.CumProd(make([]float64, timesteps), alphas)

	s := &Schedule{
		timesteps:                 timesteps,
		betas:                     toFloat32(betas),
		alphas:                    toFloat32(alphas),
		alphasCumprod:             toFloat32(alphasCumprod),
		sqrtAlphasCumprod:         make([]float32, timesteps),
		sqrtOneMinusAlphasCumprod: make([]float32, timesteps),
		placed:                    make(map[tensor.Device]*Coefficients),
	}
	for i, ac := range alphasCumprod {
		s.sqrtAlphasCumprod[i] = float32(math.Sqrt(ac))
		s.sqrtOneMinusAlphasCumprod[i] = float32(math.Sqrt(1 - ac))
	}
	return s, nil
}

// Default returns the standard 1000-step schedule from 1e-4 to 2e-2.
func Default() *Schedule {
	s, err := New(DefaultTimesteps, DefaultBetaStart, DefaultBetaEnd)
	if err != nil {
		panic(err)
	}
	return s
}

// Timesteps returns the number of diffusion steps T.
func (s *Schedule) Timesteps() int { return s.timesteps }

// Betas returns a copy of the per-step noise variances.
func (s *Schedule) Betas() []float32 { return clone(s.betas) }

// Alphas returns a copy of 1 - betas.
func (s *Schedule) Alphas() []float32 { return clone(s.alphas) }

// AlphasCumprod returns a copy of the running product of alphas.
func (s *Schedule) AlphasCumprod() []float32 { return clone(s.alphasCumprod) }

// SqrtAlphasCumprod returns a copy of sqrt(alphas_cumprod).
func (s *Schedule) SqrtAlphasCumprod() []float32 { return clone(s.sqrtAlphasCumprod) }

// SqrtOneMinusAlphasCumprod returns a copy of sqrt(1 - alphas_cumprod).
func (s *Schedule) SqrtOneMinusAlphasCumprod() []float32 {
	return clone(s.sqrtOneMinusAlphasCumprod)
}

// Beta returns beta_t.
func (s *Schedule) Beta(t int) float32 { return s.betas[t] }

// Alpha returns alpha_t.
func (s *Schedule) Alpha(t int) float32 { return s.alphas[t] }

// AlphaCumprod returns alpha_bar_t.
func (s *Schedule) AlphaCumprod(t int) float32 { return s.alphasCumprod[t] }

// SqrtOneMinusAlphaCumprod returns sqrt(1 - alpha_bar_t).
func (s *Schedule) SqrtOneMinusAlphaCumprod(t int) float32 {
	return s.sqrtOneMinusAlphasCumprod[t]
}

func toFloat32(src []float64) []float32 {
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out
}

func clone(src []float32) []float32 {
	return append([]float32(nil), src...)
}
