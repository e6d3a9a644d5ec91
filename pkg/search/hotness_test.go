// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHotnessNeverTouched(t *testing.T) {
	assert.Zero(t, Hotness(10, time.Time{}, time.Now()))
}

func TestHotnessFreshUnaccessed(t *testing.T) {
	// sigmoid(log1p(0)) is exactly 0.5 and a fresh timestamp does not
	// decay, so the floor for a live memory is 0.5.
	now := time.Now()
	assert.InDelta(t, 0.5, Hotness(0, now, now), 1e-9)
}

func TestHotnessHalfLifeDecay(t *testing.T) {
	now := time.Now()
	fresh := Hotness(0, now, now)
	aged := Hotness(0, now.Add(-DefaultHalfLife), now)
	assert.InDelta(t, fresh/2, aged, 1e-9)

	twice := Hotness(0, now.Add(-2*DefaultHalfLife), now)
	assert.InDelta(t, fresh/4, twice, 1e-9)
}

func TestHotnessFutureTimestampClamps(t *testing.T) {
	now := time.Now()
	assert.InDelta(t, Hotness(3, now, now), Hotness(3, now.Add(time.Hour), now), 1e-9)
}

func TestHotnessGrowsWithAccessCount(t *testing.T) {
	now := time.Now()
	h0 := Hotness(0, now, now)
	h1 := Hotness(1, now, now)
	h100 := Hotness(100, now, now)
	assert.Greater(t, h1, h0)
	assert.Greater(t, h100, h1)
	assert.Less(t, h100, 1.0, "frequency component saturates below 1")
}

func TestHotnessBounds(t *testing.T) {
	now := time.Now()
	for _, count := range []int{-5, 0, 1, 1000000} {
		for _, age := range []time.Duration{0, time.Hour, 30 * 24 * time.Hour, 365 * 24 * time.Hour} {
			h := Hotness(count, now.Add(-age), now)
			assert.GreaterOrEqual(t, h, 0.0)
			assert.LessOrEqual(t, h, 1.0)
		}
	}
}

func TestHotnessCustomHalfLife(t *testing.T) {
	now := time.Now()
	short := hotness(0, now.Add(-time.Hour), now, time.Hour)
	assert.InDelta(t, 0.25, short, 1e-9)
	assert.Zero(t, hotness(5, now, now, 0), "non-positive half-life disables the score")
}
