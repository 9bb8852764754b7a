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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreLoadMissingFileReturnsNilToken(t *testing.T) {
	f := &fileStore{path: filepath.Join(t.TempDir(), "credentials.sealed")}
	tok, err := f.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestFileStoreSaveThenLoadRoundTrips(t *testing.T) {
	f := &fileStore{path: filepath.Join(t.TempDir(), "credentials.sealed")}
	want := &oauth2.Token{AccessToken: "tok-abc", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Truncate(time.Second)}

	require.NoError(t, f.Save(want))
	got, err := f.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.TokenType, got.TokenType)
	assert.True(t, want.Expiry.Equal(got.Expiry))
}

func TestFileStoreLoadRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.sealed")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	f := &fileStore{path: path}
	_, err := f.Load()
	assert.Error(t, err)
}

func TestFileStoreLoadRejectsCorruptSealedData(t *testing.T) {
	f := &fileStore{path: filepath.Join(t.TempDir(), "credentials.sealed")}
	require.NoError(t, f.Save(&oauth2.Token{AccessToken: "tok"}))

	// Corrupt the ciphertext while keeping it long enough to pass the
	// length check, so secretbox.Open must fail to authenticate.
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(f.path, data, 0o600))

	_, err = f.Load()
	assert.Error(t, err)
}

type fakeCredentialStore struct {
	saved   *oauth2.Token
	loadErr error
	saveErr error
}

func (s *fakeCredentialStore) Load() (*oauth2.Token, error) {
	return s.saved, s.loadErr
}

func (s *fakeCredentialStore) Save(tok *oauth2.Token) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = tok
	return nil
}

func TestTokenSourceWithNoBaseReadsFromStore(t *testing.T) {
	store := &fakeCredentialStore{saved: &oauth2.Token{AccessToken: "cached"}}
	ts := &TokenSource{Store: store}

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "cached", tok.AccessToken)
}

func TestTokenSourcePersistsRefreshedTokenToStore(t *testing.T) {
	store := &fakeCredentialStore{}
	base := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fresh"})
	ts := &TokenSource{Store: store, Base: base}

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	require.NotNil(t, store.saved)
	assert.Equal(t, "fresh", store.saved.AccessToken)
}

func TestTokenSourcePropagatesSaveError(t *testing.T) {
	store := &fakeCredentialStore{saveErr: errors.New("disk full")}
	base := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fresh"})
	ts := &TokenSource{Store: store, Base: base}

	_, err := ts.Token()
	assert.Error(t, err)
}

func TestCachedTokenSourceReusesExistingTokenWithoutBase(t *testing.T) {
	future := time.Now().Add(time.Hour)
	store := &fakeCredentialStore{saved: &oauth2.Token{AccessToken: "still-valid", Expiry: future}}

	src, err := CachedTokenSource(context.Background(), store, nil)
	require.NoError(t, err)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "still-valid", tok.AccessToken)
}

func TestCachedTokenSourceFallsBackToTokenSourceWhenStoreEmpty(t *testing.T) {
	store := &fakeCredentialStore{}
	base := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "from-base"})

	src, err := CachedTokenSource(context.Background(), store, base)
	require.NoError(t, err)
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "from-base", tok.AccessToken)
}
