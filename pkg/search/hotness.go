// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"math"
	"time"
)

// DefaultHalfLife governs how quickly an untouched memory cools.
const DefaultHalfLife = 7 * 24 * time.Hour

// Hotness scores how alive a memory is on [0, 1]. The frequency component
// sigmoid(log1p(activeCount)) is damped by exponential recency decay with
// the default half-life. A zero updatedAt means the memory was never
// touched and scores 0.
func Hotness(activeCount int, updatedAt, now time.Time) float64 {
	return hotness(activeCount, updatedAt, now, DefaultHalfLife)
}

func hotness(activeCount int, updatedAt, now time.Time, halfLife time.Duration) float64 {
	if updatedAt.IsZero() || halfLife <= 0 {
		return 0
	}
	if activeCount < 0 {
		activeCount = 0
	}
	freq := 1 / (1 + math.Exp(-math.Log1p(float64(activeCount))))
	age := now.Sub(updatedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-float64(age) / float64(halfLife))
	return freq * recency
}
