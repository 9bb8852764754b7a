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

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopPublisherDiscards(t *testing.T) {
	var p Publisher = NoopPublisher{}
	err := p.Publish(context.Background(), "kernel.publish.proposed", TestRequest{Key: "x"}, 5)
	assert.NoError(t, err)
}

func TestHTTPPublisherSendsHeadersAndBody(t *testing.T) {
	var gotBody TestRequest
	var gotRoutingKey, gotPriority, gotDeliveryMode string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		gotRoutingKey = r.Header.Get("X-Swm-Routing-Key")
		gotPriority = r.Header.Get("X-Swm-Priority")
		gotDeliveryMode = r.Header.Get("X-Swm-Delivery-Mode")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewHTTPPublisher(srv.URL, nil)
	req := TestRequest{
		Key:        "kernel-release-tracking-bug-live",
		Op:         "request",
		Who:        []string{"canonical-kernel-team"},
		Pocket:     "proposed",
		SeriesName: "focal",
		Package:    "linux",
		SRUCycle:   "2026.03.02",
	}
	err := p.Publish(context.Background(), "kernel.publish.proposed", req, 7)
	require.NoError(t, err)

	assert.Equal(t, req, gotBody)
	assert.Equal(t, "kernel.publish.proposed", gotRoutingKey)
	assert.Equal(t, "7", gotPriority)
	assert.Equal(t, "2", gotDeliveryMode)
}

func TestHTTPPublisherSignsWhenKeyConfigured(t *testing.T) {
	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Swm-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	key := []byte("a-signing-secret")
	p := NewHTTPPublisher(srv.URL, key)
	err := p.Publish(context.Background(), "kernel.published.proposed", TestRequest{Key: "y"}, 1)
	require.NoError(t, err)
	require.NotEmpty(t, gotSignature)

	tok, err := jwt.Parse(gotSignature, func(*jwt.Token) (interface{}, error) { return key, nil })
	require.NoError(t, err)
	assert.True(t, tok.Valid)
}

func TestHTTPPublisherNoSigningKeyOmitsSignature(t *testing.T) {
	var gotSignature string
	sawHeader := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature, sawHeader = r.Header.Get("X-Swm-Signature"), r.Header["X-Swm-Signature"] != nil
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPublisher(srv.URL, nil)
	err := p.Publish(context.Background(), "kernel.publish.proposed", TestRequest{Key: "z"}, 1)
	require.NoError(t, err)
	assert.False(t, sawHeader)
	assert.Empty(t, gotSignature)
}

func TestHTTPPublisherErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPPublisher(srv.URL, nil)
	err := p.Publish(context.Background(), "kernel.publish.proposed", TestRequest{}, 0)
	assert.Error(t, err)
}

func TestPublishThreadsafeDelegates(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPublisher(srv.URL, nil)
	err := p.PublishThreadsafe(context.Background(), "kernel.publish.proposed", TestRequest{}, 0)
	require.NoError(t, err)
	assert.True(t, called)
}
