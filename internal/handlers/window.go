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

import "time"

// withinPublishingWindow reports whether promotion to -security/-updates is
// permitted: the blackout runs from Friday 18:00 UTC (closed) until Sunday
// 21:00 UTC (open again), so archive admins are not paged with a fresh publication
// over the weekend.
func withinPublishingWindow(now time.Time) bool {
	now = now.UTC()
	weekday := now.Weekday()
	hour := now.Hour()

	switch weekday {
	case time.Friday:
		return hour < 18
	case time.Saturday:
		return false
	case time.Sunday:
		return hour >= 21
	default:
		return true
	}
}

// WithinPublishingWindow is the exported form of withinPublishingWindow,
// for callers outside this package that need the gate's value without a
// full crank.
func WithinPublishingWindow(now time.Time) bool { return withinPublishingWindow(now) }
