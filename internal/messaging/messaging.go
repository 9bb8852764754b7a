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

// Package messaging implements C7: publishing test-request messages onto
// a durable exchange (§4.7, §6). No AMQP client library appears anywhere
// in the retrieved pack (teacher or siblings) to ground a wire-protocol
// implementation against, so this package defines the Publisher interface
// the rest of the engine depends on and ships an HTTP-webhook-based
// implementation behind it -- a documented extension point rather than a
// fabricated AMQP framer (see DESIGN.md).
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestRequest is the wire schema §6 specifies for kernel.publish.* /
// kernel.published.* routing keys.
type TestRequest struct {
	Key          string   `json:"key"`
	Op           string   `json:"op"`
	Who          []string `json:"who"`
	Pocket       string   `json:"pocket"`
	PPA          string   `json:"ppa,omitempty"`
	Date         string   `json:"date"`
	SeriesName   string   `json:"series-name"`
	KernelVer    string   `json:"kernel-version"`
	Package      string   `json:"package"`
	Flavour      string   `json:"flavour"`
	MetaPkg      string   `json:"meta-pkg,omitempty"`
	SRUCycle     string   `json:"sru-cycle"`
	Arches       []string `json:"arches,omitempty"`
}

// Publisher publishes a routing-key/payload pair onto the exchange named
// "kernel" (§6). Delivery is expected to be durable/persistent; priority
// is an optional hint, unused by the HTTP adapter but kept on the
// interface so a real AMQP implementation can honor it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload TestRequest, priority int) error
}

// NoopPublisher discards every message; used when messaging is disabled
// (no broker configured) rather than leaving Context.Publish nil.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, TestRequest, int) error { return nil }

// HTTPPublisher posts each message as a JSON body to a configured
// webhook URL, signing the payload with a JWT carried in the
// X-Swm-Signature header (§[FULL] DOMAIN STACK: golang-jwt/jwt/v5) so a
// consumer can verify origin without a shared-secret header alone.
type HTTPPublisher struct {
	Client     *http.Client
	WebhookURL string
	SigningKey []byte
}

// NewHTTPPublisher builds an HTTPPublisher posting to webhookURL, signing
// with signingKey. A nil/empty signingKey disables signing (local/dev use).
func NewHTTPPublisher(webhookURL string, signingKey []byte) *HTTPPublisher {
	return &HTTPPublisher{
		Client:     &http.Client{Timeout: 15 * time.Second},
		WebhookURL: webhookURL,
		SigningKey: signingKey,
	}
}

func (p *HTTPPublisher) sign(body []byte) (string, error) {
	if len(p.SigningKey) == 0 {
		return "", nil
	}
	claims := jwt.MapClaims{
		"iat":  time.Now().Unix(),
		"body": sha256Hex(body),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(p.SigningKey)
}

// Publish posts payload to the configured webhook. The routingKey and
// priority are carried as headers so a webhook receiver can route without
// parsing the body.
func (p *HTTPPublisher) Publish(ctx context.Context, routingKey string, payload TestRequest, priority int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal test request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Swm-Routing-Key", routingKey)
	req.Header.Set("X-Swm-Priority", fmt.Sprintf("%d", priority))
	req.Header.Set("X-Swm-Delivery-Mode", "2") // persistent, per §4.7

	if sig, err := p.sign(body); err != nil {
		return fmt.Errorf("sign payload: %w", err)
	} else if sig != "" {
		req.Header.Set("X-Swm-Signature", sig)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("publish %s: webhook returned %s", routingKey, resp.Status)
	}
	return nil
}

// PublishThreadsafe wraps Publish for callers that need the same
// thread-safety guarantee the original's publish_threadsafe gave: the
// underlying *http.Client is already safe for concurrent use, so this is
// a direct passthrough kept as a named entry point for parity with §4.7.
func (p *HTTPPublisher) PublishThreadsafe(ctx context.Context, routingKey string, payload TestRequest, priority int) error {
	return p.Publish(ctx, routingKey, payload, priority)
}
