package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gren-lang/package-registry/internal/models"
)

const searchLimit = 25

// RegisterForSearch records entry as the searchable version of its package.
// An existing entry is only replaced by a semantically greater version, so
// the index always reflects the latest release. updated reports whether a
// row was written.
func (s *Store) RegisterForSearch(ctx context.Context, entry models.SearchEntry) (updated bool, err error) {
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT version FROM package_search WHERE name = $1 FOR UPDATE`, entry.Name).Scan(&current)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			tag, err := tx.Exec(ctx, `
				INSERT INTO package_search (name, version, summary) VALUES ($1, $2, $3)
				ON CONFLICT (name) DO NOTHING
			`, entry.Name, entry.Version, entry.Summary)
			if err != nil {
				return fmt.Errorf("insert search entry: %w", err)
			}
			updated = tag.RowsAffected() == 1
			return nil
		case err != nil:
			return fmt.Errorf("query search entry: %w", err)
		}

		if !models.VersionGreater(entry.Version, current) {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE package_search SET version = $2, summary = $3 WHERE name = $1
		`, entry.Name, entry.Version, entry.Summary); err != nil {
			return fmt.Errorf("update search entry: %w", err)
		}
		updated = true
		return nil
	})
	return updated, err
}

// SearchEntry returns the indexed entry for a package name.
func (s *Store) SearchEntry(ctx context.Context, name string) (models.SearchEntry, error) {
	e := models.SearchEntry{Name: name}
	err := s.pool.QueryRow(ctx, `SELECT version, summary FROM package_search WHERE name = $1`, name).Scan(&e.Version, &e.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SearchEntry{}, fmt.Errorf("search entry %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return models.SearchEntry{}, fmt.Errorf("query search entry %s: %w", name, err)
	}
	return e, nil
}

// Search ranks indexed packages against a free text query.
func (s *Store) Search(ctx context.Context, query string) ([]models.SearchEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT name, version, summary
		FROM package_search
		WHERE document @@ plainto_tsquery('simple', $1)
		   OR name ILIKE '%' || $1 || '%'
		ORDER BY ts_rank(document, plainto_tsquery('simple', $1)) DESC, name
		LIMIT $2
	`, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search packages: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.SearchEntry])
}
