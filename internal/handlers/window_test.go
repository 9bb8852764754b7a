// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithinPublishingWindowMidweekIsOpen(t *testing.T) {
	assert.True(t, WithinPublishingWindow(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))) // Wednesday
}

func TestWithinPublishingWindowFridayBeforeEveningIsOpen(t *testing.T) {
	assert.True(t, WithinPublishingWindow(time.Date(2026, 3, 6, 17, 59, 0, 0, time.UTC))) // Friday 17:59 UTC
}

func TestWithinPublishingWindowFridayEveningIsBlackout(t *testing.T) {
	assert.False(t, WithinPublishingWindow(time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC))) // Friday 18:00 UTC
}

func TestWithinPublishingWindowSaturdayIsBlackout(t *testing.T) {
	assert.False(t, WithinPublishingWindow(time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC))) // Saturday
}

func TestWithinPublishingWindowSundayBeforeEveningIsBlackout(t *testing.T) {
	assert.False(t, WithinPublishingWindow(time.Date(2026, 3, 8, 20, 59, 0, 0, time.UTC))) // Sunday 20:59 UTC
}

func TestWithinPublishingWindowSundayEveningReopens(t *testing.T) {
	assert.True(t, WithinPublishingWindow(time.Date(2026, 3, 8, 21, 0, 0, 0, time.UTC))) // Sunday 21:00 UTC
}

func TestWithinPublishingWindowConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 2026-03-06 14:00 -05:00 is 2026-03-06 19:00 UTC, inside the Friday blackout.
	assert.False(t, WithinPublishingWindow(time.Date(2026, 3, 6, 14, 0, 0, 0, loc)))
}
