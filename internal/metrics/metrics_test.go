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

package metrics

import (
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lockWaitCountRe = regexp.MustCompile(`swm_lock_wait_seconds_count (\d+)`)

func scrapeLockWaitCount(t *testing.T) float64 {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	m := lockWaitCountRe.FindStringSubmatch(rec.Body.String())
	require.NotNil(t, m, "swm_lock_wait_seconds_count not found in scrape")
	n, err := strconv.ParseFloat(m[1], 64)
	require.NoError(t, err)
	return n
}

func TestRecordCrankIncrementsCountersByOutcome(t *testing.T) {
	before := testutil.ToFloat64(trackersCranked.WithLabelValues("changed"))
	RecordCrank("changed", 1.5, 3)
	after := testutil.ToFloat64(trackersCranked.WithLabelValues("changed"))
	assert.Equal(t, before+1, after)
}

func TestRecordTransitionIncrementsByTaskAndStatus(t *testing.T) {
	before := testutil.ToFloat64(taskTransitions.WithLabelValues("promote-to-proposed", "Fix Released"))
	RecordTransition("promote-to-proposed", "Fix Released")
	after := testutil.ToFloat64(taskTransitions.WithLabelValues("promote-to-proposed", "Fix Released"))
	assert.Equal(t, before+1, after)
}

func TestSetLiveTrackersSetsGauge(t *testing.T) {
	SetLiveTrackers(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(liveTrackers))
}

func TestRecordLockWaitObservesHistogram(t *testing.T) {
	before := scrapeLockWaitCount(t)
	RecordLockWait(0.25)
	after := scrapeLockWaitCount(t)
	assert.Equal(t, before+1, after)
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	SetLiveTrackers(7)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "swm_live_trackers 7")
}
