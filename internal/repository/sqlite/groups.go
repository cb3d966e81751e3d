package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"reconstore/internal/domain"
	"reconstore/internal/metrics"
)

// RecordGroup finds or inserts a group by (domain, name), compared
// case-insensitively, and returns its id either way
func (s *Store) RecordGroup(ctx context.Context, domainName, name string) (int64, error) {
	domainName = domain.NormalizeDomain(domainName)

	var id int64
	err := s.withTx(ctx, "record group", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM groups WHERE LOWER(domain) = LOWER(?) AND LOWER(name) = LOWER(?) LIMIT 1
		`, domainName, name).Scan(&id)
		if err == nil {
			s.record(metrics.EntityGroup, metrics.OutcomeUnchanged)
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to query groups: %w", err)
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO groups (domain, name) VALUES (?, ?)`, domainName, name)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read group id: %w", err)
		}
		s.record(metrics.EntityGroup, metrics.OutcomeInserted)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug().Str("domain", domainName).Str("name", name).Int64("id", id).Msg("group recorded")
	return id, nil
}

// IsGroupValid reports whether a group with this id exists
func (s *Store) IsGroupValid(ctx context.Context, id int64) (bool, error) {
	ok, err := exists(ctx, s.db, tableGroups, id)
	return ok, storeErr("is group valid", err)
}

// GetGroups returns groups by id, by exact name and domain when both are
// given, by name substring for any other non-empty filter, else all
func (s *Store) GetGroups(ctx context.Context, filter, name, domainName string) ([]domain.Group, error) {
	term := domain.FilterTerm(filter)
	if domainName != "" {
		domainName = domain.NormalizeDomain(domainName)
	}

	if id, ok := term.ID(); ok {
		valid, err := s.IsGroupValid(ctx, id)
		if err != nil {
			return nil, err
		}
		if valid {
			return s.queryGroups(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = ? LIMIT 1`, id)
		}
	}

	switch {
	case name != "" && domainName != "":
		return s.queryGroups(ctx, `
			SELECT `+groupColumns+` FROM groups WHERE LOWER(name) = LOWER(?) AND LOWER(domain) = LOWER(?)
		`, name, domainName)
	case !term.IsEmpty():
		return s.queryGroups(ctx, `SELECT `+groupColumns+` FROM groups WHERE LOWER(name) LIKE LOWER(?)`, term.Pattern())
	default:
		return s.queryGroups(ctx, `SELECT `+groupColumns+` FROM groups`)
	}
}

func (s *Store) queryGroups(ctx context.Context, query string, args ...any) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("get groups", fmt.Errorf("failed to query groups: %w", err))
	}
	groups, err := scanGroups(rows)
	return groups, storeErr("get groups", err)
}
