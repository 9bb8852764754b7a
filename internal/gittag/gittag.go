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

// Package gittag implements the HTTPS git-tag existence check §6
// describes: a GET against a launchpad-git host's tag page, where the
// absence of the CSS class "error" in the response body means the tag
// exists. It never raises for "tag absent" -- that is a normal negative
// result -- only for a genuine transport failure (errkind.GitTagError).
package gittag

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/canonical/swm/internal/errkind"
)

// Checker answers whether a git tag exists in a source's declared
// repository. internal/tracker is not involved -- this is a separate,
// unauthenticated HTTPS surface (§6).
type Checker interface {
	// Exists reports whether any of the tag forms derived from version
	// (per the three-form fallback order below) exists in repoURL.
	Exists(ctx context.Context, repoURL, version string) (bool, error)
}

// HTTPChecker is the production Checker: a plain net/http GET against
// `<repo-url>/tag/?id=<url-encoded tag>` (justification for stdlib over a
// library client: a single unauthenticated GET with a body substring
// check, no retries or auth -- nothing a REST client adds value over).
type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker returns a Checker with the given timeout applied to every
// request (the original imposed no explicit timeout; §5 leaves per-RPC
// timeouts to "the tracker API client's default" -- here that default is
// made explicit since net/http has none out of the box).
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPChecker{Client: &http.Client{Timeout: timeout}}
}

// tagForms builds the candidate tag strings, in order:
// "Ubuntu-<version-with-_ for ~>", the same form with a trailing "-edge"
// stripped (only when the version ends in "-edge"), then
// "Ubuntu-lts-<version-with-_ for ~>". No per-source suffix is inserted
// after "Ubuntu".
func tagForms(version string) []string {
	underscored := strings.ReplaceAll(version, "~", "_")
	primary := "Ubuntu-" + underscored

	forms := []string{primary}
	if stripped := strings.TrimSuffix(primary, "-edge"); stripped != primary {
		forms = append(forms, stripped)
	}
	forms = append(forms, "Ubuntu-lts-"+underscored)
	return forms
}

// rewriteGitURL normalizes a git:// repo reference to the https:// form
// the tag-page endpoint is served over, matching the original's git:// ->
// https:// rewrite ahead of the HTTP probe.
func rewriteGitURL(repoURL string) string {
	if strings.HasPrefix(repoURL, "git://") {
		return "https://" + strings.TrimPrefix(repoURL, "git://")
	}
	return repoURL
}

func (c *HTTPChecker) probe(ctx context.Context, repoURL, tag string) (bool, error) {
	base := strings.TrimRight(rewriteGitURL(repoURL), "/")
	target := fmt.Sprintf("%s/tag/?id=%s", base, url.QueryEscape(tag))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, &errkind.GitTagError{URL: target, Cause: err}
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return false, &errkind.GitTagError{URL: target, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, &errkind.GitTagError{URL: target, Cause: err}
	}

	text := string(body)
	hasError := strings.Contains(text, `class='error'`) || strings.Contains(text, `class="error"`)
	return !hasError, nil
}

// Exists tries each tag form in order, returning true on the first that
// resolves to a tag page without an error marker. A GitTagError from any
// individual probe is treated as "tag not present" by callers per §7; it
// is still returned here so the caller can log it.
func (c *HTTPChecker) Exists(ctx context.Context, repoURL, version string) (bool, error) {
	var lastErr error
	for _, tag := range tagForms(version) {
		ok, err := c.probe(ctx, repoURL, tag)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, lastErr
}
