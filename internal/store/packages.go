package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gren-lang/package-registry/internal/models"
)

// PersistParams identifies the package version a build artifact belongs to.
type PersistParams struct {
	Name     string
	URL      string
	Version  string
	Artifact *models.BuildArtifact
}

// ExistingVersions lists every version of a package that has been imported.
func (s *Store) ExistingVersions(ctx context.Context, name string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT v.version
		FROM package_version v
		JOIN package p ON p.id = v.package_id
		WHERE p.name = $1
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query versions of %s: %w", name, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// PersistBuild writes a package version and all of its module documentation
// in one transaction. Either every row is committed or none is. It returns
// ErrDuplicateKey when the version was imported before.
func (s *Store) PersistBuild(ctx context.Context, p PersistParams) error {
	if p.Artifact == nil {
		return errors.New("persist build: nil artifact")
	}
	a := p.Artifact
	now := s.clock.Now()

	return s.inTx(ctx, func(tx pgx.Tx) error {
		var packageID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO package (name, url) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET url = EXCLUDED.url
			RETURNING id
		`, p.Name, p.URL).Scan(&packageID)
		if err != nil {
			return fmt.Errorf("upsert package %s: %w", p.Name, err)
		}

		var versionID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO package_version (package_id, version, license, gren_compatibility, summary, readme, imported_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (package_id, version) DO NOTHING
			RETURNING id
		`, packageID, p.Version, a.Manifest.License, a.Manifest.GrenVersion, a.Manifest.Summary, a.Readme, now).Scan(&versionID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDuplicateKey
		}
		if err != nil {
			return fmt.Errorf("insert version %s@%s: %w", p.Name, p.Version, err)
		}

		for _, m := range a.PlacedModules() {
			if err := insertModule(ctx, tx, versionID, m); err != nil {
				return fmt.Errorf("insert module %s: %w", m.Name, err)
			}
		}
		return nil
	})
}

func insertModule(ctx context.Context, tx pgx.Tx, versionID int64, m models.PlacedModule) error {
	var category *string
	if m.Category != "" {
		category = &m.Category
	}

	var moduleID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO package_module (package_version_id, name, sort_order, category, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, versionID, m.Name, m.Order, category, m.Comment).Scan(&moduleID)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, u := range m.Unions {
		cases := string(u.Cases)
		if len(u.Cases) == 0 {
			cases = "[]"
		}
		batch.Queue(`
			INSERT INTO package_module_union (module_id, name, comment, args, cases)
			VALUES ($1, $2, $3, $4, $5)
		`, moduleID, u.Name, u.Comment, jsonList(u.Args), cases)
	}
	for _, al := range m.Aliases {
		batch.Queue(`
			INSERT INTO package_module_alias (module_id, name, comment, args, type)
			VALUES ($1, $2, $3, $4, $5)
		`, moduleID, al.Name, al.Comment, jsonList(al.Args), al.Type)
	}
	for _, v := range m.Values {
		batch.Queue(`
			INSERT INTO package_module_value (module_id, name, comment, type)
			VALUES ($1, $2, $3, $4)
		`, moduleID, v.Name, v.Comment, v.Type)
	}
	for _, b := range m.Binops {
		batch.Queue(`
			INSERT INTO package_module_binop (module_id, name, comment, type, associativity, precedence)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, moduleID, b.Name, b.Comment, b.Type, b.Associativity, b.Precedence)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	raw, _ := json.Marshal(items)
	return string(raw)
}

// Summary returns the summary stored for a package version.
func (s *Store) Summary(ctx context.Context, name, version string) (string, error) {
	var summary string
	err := s.pool.QueryRow(ctx, `
		SELECT v.summary
		FROM package_version v
		JOIN package p ON p.id = v.package_id
		WHERE p.name = $1 AND v.version = $2
	`, name, version).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("summary of %s@%s: %w", name, version, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query summary of %s@%s: %w", name, version, err)
	}
	return summary, nil
}

// ModuleNames lists the modules of a package version in display order.
func (s *Store) ModuleNames(ctx context.Context, name, version string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.name
		FROM package_module m
		JOIN package_version v ON v.id = m.package_version_id
		JOIN package p ON p.id = v.package_id
		WHERE p.name = $1 AND v.version = $2
		ORDER BY m.sort_order
	`, name, version)
	if err != nil {
		return nil, fmt.Errorf("query modules of %s@%s: %w", name, version, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
