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

package pkgset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CachingClient wraps an ArchiveClient with a local sqlite cache of
// PublishedSources lookups, the query every PackageSet issues at least
// once per route hop. A cached list is returned as-is until its TTL
// expires, so publications or status changes made in the meantime are
// not seen until the entry is refreshed.
type CachingClient struct {
	ArchiveClient
	db  *sql.DB
	ttl time.Duration
}

// NewCachingClient opens (creating if needed) a sqlite database at path
// and wraps next around it. A zero ttl disables expiry: entries are
// reused until the database is deleted.
func NewCachingClient(next ArchiveClient, path string, ttl time.Duration) (*CachingClient, error) {
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open archive cache %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS published_sources (
		cache_key   TEXT PRIMARY KEY,
		payload     TEXT NOT NULL,
		fetched_at  INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive cache: %w", err)
	}

	return &CachingClient{ArchiveClient: next, db: db, ttl: ttl}, nil
}

// Close releases the underlying sqlite handle.
func (c *CachingClient) Close() error {
	return c.db.Close()
}

func sourceQueryKey(q SourceQuery) string {
	return fmt.Sprintf("%s|%s|%s|%s", q.Archive, q.Series, q.SourceName, q.Pocket)
}

// PublishedSources serves from the cache when a fresh-enough row exists,
// otherwise queries through and stores the result. A query error never
// touches the cache: only a successful round trip is worth remembering.
func (c *CachingClient) PublishedSources(ctx context.Context, q SourceQuery) ([]PublishedSource, error) {
	key := sourceQueryKey(q)

	var payload string
	var fetchedAt int64
	row := c.db.QueryRowContext(ctx, `SELECT payload, fetched_at FROM published_sources WHERE cache_key = ?`, key)
	if err := row.Scan(&payload, &fetchedAt); err == nil {
		if c.ttl <= 0 || time.Since(time.Unix(fetchedAt, 0)) < c.ttl {
			var sources []PublishedSource
			if jsonErr := json.Unmarshal([]byte(payload), &sources); jsonErr == nil {
				return sources, nil
			}
		}
	}

	sources, err := c.ArchiveClient.PublishedSources(ctx, q)
	if err != nil {
		return nil, err
	}

	if encoded, jsonErr := json.Marshal(sources); jsonErr == nil {
		_, _ = c.db.ExecContext(ctx, `INSERT INTO published_sources (cache_key, payload, fetched_at) VALUES (?, ?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
			key, string(encoded), time.Now().Unix())
	}
	return sources, nil
}
