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

package tracker

import (
	"context"
	crand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/oauth2"
	"github.com/zalando/go-keyring"
)

func readRandom(b []byte) (int, error) {
	return crand.Read(b)
}

// CredentialStore persists the long-lived OAuth access token swmd obtains
// once during interactive enrollment ("swm auth login"), so a daemon
// restart does not require a human back at the terminal.
//
// The OS keyring is tried first -- zalando/go-keyring -- and is the
// expected path on any desktop or server with a keyring service running.
// When no keyring service is available (e.g. a bare container, the usual
// home for swmd), credentials fall back to a secretbox-sealed file,
// keyed by a locally generated key stored alongside it at 0600: this is
// obfuscation against casual disclosure, not defense against an attacker
// who already has the host, the same threat model the keyring backend
// itself assumes.
const keyringService = "swm-tracker"

// CredentialStore abstracts the two backends behind one interface so
// internal/tracker's enrollment and token-refresh paths do not care which
// is active.
type CredentialStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// NewCredentialStore probes the OS keyring and falls back to a
// secretbox-sealed file under dir if no keyring service answers.
func NewCredentialStore(dir string) CredentialStore {
	if keyringAvailable() {
		return &keyringStore{}
	}
	return &fileStore{path: filepath.Join(dir, "credentials.sealed")}
}

func keyringAvailable() bool {
	_, err := keyring.Get(keyringService, "__swm_availability_probe__")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

type keyringStore struct{}

func (k *keyringStore) Load() (*oauth2.Token, error) {
	raw, err := keyring.Get(keyringService, "oauth-token")
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &tok, nil
}

func (k *keyringStore) Save(tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := keyring.Set(keyringService, "oauth-token", string(raw)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// fileStore is the secretbox-sealed fallback. The sealing key lives next
// to the sealed file (same directory, 0600) -- this defends against
// someone reading the credentials file alone (e.g. an accidental backup
// or log capture of the directory listing), not against an attacker with
// filesystem access to the host, which the keyring backend does not
// defend against either.
type fileStore struct {
	path string
}

func (f *fileStore) keyPath() string {
	return f.path + ".key"
}

func (f *fileStore) loadKey() (*[32]byte, error) {
	data, err := os.ReadFile(f.keyPath())
	if errors.Is(err, os.ErrNotExist) {
		return f.generateKey()
	}
	if err != nil {
		return nil, fmt.Errorf("read seal key: %w", err)
	}
	var key [32]byte
	n, err := base64.StdEncoding.Decode(key[:], data)
	if err != nil || n != 32 {
		return nil, fmt.Errorf("seal key %s is corrupt", f.keyPath())
	}
	return &key, nil
}

func (f *fileStore) generateKey() (*[32]byte, error) {
	var key [32]byte
	if _, err := readRandom(key[:]); err != nil {
		return nil, fmt.Errorf("generate seal key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.keyPath()), 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key[:])
	if err := os.WriteFile(f.keyPath(), []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("write seal key: %w", err)
	}
	return &key, nil
}

func (f *fileStore) Load() (*oauth2.Token, error) {
	sealed, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sealed credentials: %w", err)
	}
	key, err := f.loadKey()
	if err != nil {
		return nil, err
	}
	if len(sealed) < 24 {
		return nil, fmt.Errorf("sealed credentials file %s is truncated", f.path)
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("sealed credentials file %s failed to open (wrong key or corrupted)", f.path)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &tok, nil
}

func (f *fileStore) Save(tok *oauth2.Token) error {
	key, err := f.loadKey()
	if err != nil {
		return err
	}
	plain, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	var nonce [24]byte
	if _, err := readRandom(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, key)

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("write sealed credentials: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// TokenSource wraps a CredentialStore into an oauth2.TokenSource that
// refreshes through base (typically oauth2.Config.TokenSource for
// Launchpad's OAuth1-over-HTTPS exchange) and persists whatever it
// returns back to store, so a refreshed token survives the next restart.
type TokenSource struct {
	Store CredentialStore
	Base  oauth2.TokenSource
}

func (t *TokenSource) Token() (*oauth2.Token, error) {
	if t.Base == nil {
		return t.Store.Load()
	}
	tok, err := t.Base.Token()
	if err != nil {
		return nil, err
	}
	if err := t.Store.Save(tok); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}
	return tok, nil
}

// CachedTokenSource loads a previously saved token from store and builds
// an oauth2.TokenSource that reuses it without a network round-trip until
// it expires, at which point base takes over.
func CachedTokenSource(ctx context.Context, store CredentialStore, base oauth2.TokenSource) (oauth2.TokenSource, error) {
	cached, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return &TokenSource{Store: store, Base: base}, nil
	}
	reuse := oauth2.ReuseTokenSource(cached, &TokenSource{Store: store, Base: base})
	_ = ctx
	return reuse, nil
}
