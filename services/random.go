package services

import "math/rand"

// RandomSource yields uniform values in [0,1) for the golden draw.
type RandomSource interface {
	Float64() float64
}

type defaultRandom struct{}

func (defaultRandom) Float64() float64 { return rand.Float64() }

// DefaultRandom is backed by math/rand's goroutine-safe global generator.
var DefaultRandom RandomSource = defaultRandom{}

// FixedRandom always returns the same draw.
type FixedRandom float64

func (f FixedRandom) Float64() float64 { return float64(f) }
