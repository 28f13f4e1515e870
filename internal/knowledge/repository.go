// Package knowledge stores the key/value knowledge base used to answer
// info intents.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one knowledge base item.
type Entry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists knowledge entries to PostgreSQL.
type Repository struct {
	pool querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("knowledge: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("knowledge: querier required")
	}
	return &Repository{pool: q}
}

// Upsert inserts or replaces the entry for key.
func (r *Repository) Upsert(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO knowledge_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("knowledge: upsert %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key; deleting a missing key is not an error.
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM knowledge_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("knowledge: delete %q: %w", key, err)
	}
	return nil
}

// List returns all entries ordered by key.
func (r *Repository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, updated_at FROM knowledge_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("knowledge: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Lookup finds the entry whose key appears (case-insensitively) inside the
// message text. When several keys match, the longest key wins; equal
// lengths break lexicographically, so the answer never depends on storage
// iteration order. Returns ("", false, nil) when nothing matches.
func (r *Repository) Lookup(ctx context.Context, text string) (string, bool, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return "", false, err
	}
	return Match(entries, text)
}

// Match applies the lookup rule to an already-loaded entry set.
func Match(entries []Entry, text string) (string, bool, error) {
	lowered := strings.ToLower(text)

	var matched []Entry
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(e.Key)) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return "", false, nil
	}

	sort.Slice(matched, func(i, j int) bool {
		if len(matched[i].Key) != len(matched[j].Key) {
			return len(matched[i].Key) > len(matched[j].Key)
		}
		return matched[i].Key < matched[j].Key
	})
	return matched[0].Value, true, nil
}
