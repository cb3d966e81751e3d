package sqlite

import (
	"context"
	"fmt"
	"strconv"

	"reconstore/internal/domain"
	"reconstore/internal/metrics"
)

// RecordShare stores a share seen by a user on a computer. Re-discovering
// the same (computer, user, name) is a no-op and returns id 0.
func (s *Store) RecordShare(ctx context.Context, share domain.Share) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO shares (computerid, userid, name, remark, read, write)
		VALUES (?, ?, ?, ?, ?, ?)
	`, strconv.FormatInt(share.ComputerID, 10), share.UserID, share.Name, share.Remark, share.Read, share.Write)
	if err != nil {
		return 0, storeErr("record share", fmt.Errorf("failed to insert share: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("record share", err)
	}
	if n == 0 {
		s.record(metrics.EntityShare, metrics.OutcomeUnchanged)
		return 0, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("record share", err)
	}

	s.record(metrics.EntityShare, metrics.OutcomeInserted)
	s.log.Debug().Int64("computer_id", share.ComputerID).Int64("user_id", share.UserID).
		Str("name", share.Name).Bool("read", share.Read).Bool("write", share.Write).Msg("share recorded")
	return id, nil
}

// IsShareValid reports whether a share with this id exists
func (s *Store) IsShareValid(ctx context.Context, id int64) (bool, error) {
	ok, err := exists(ctx, s.db, tableShares, id)
	return ok, storeErr("is share valid", err)
}

// GetShares returns shares by id, name substring, or all
func (s *Store) GetShares(ctx context.Context, filter string) ([]domain.Share, error) {
	term := domain.FilterTerm(filter)

	if id, ok := term.ID(); ok {
		valid, err := s.IsShareValid(ctx, id)
		if err != nil {
			return nil, err
		}
		if valid {
			return s.queryShares(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ?`, id)
		}
	}

	if !term.IsEmpty() {
		return s.queryShares(ctx, `SELECT `+shareColumns+` FROM shares WHERE LOWER(name) LIKE LOWER(?)`, term.Pattern())
	}
	return s.queryShares(ctx, `SELECT `+shareColumns+` FROM shares`)
}

// GetSharesByAccess returns shares granting perm ("r", "w" or "rw"),
// restricted to one share when shareID is non-zero
func (s *Store) GetSharesByAccess(ctx context.Context, perm string, shareID int64) ([]domain.Share, error) {
	p, err := domain.ParsePermission(perm)
	if err != nil {
		return nil, err
	}

	if shareID != 0 {
		return s.queryShares(ctx, `SELECT `+shareColumns+` FROM shares WHERE id = ? AND `+p.Predicate(), shareID)
	}
	return s.queryShares(ctx, `SELECT `+shareColumns+` FROM shares WHERE `+p.Predicate())
}

// GetUsersWithShareAccess returns the ids of users granted perm on the named
// share of a computer
func (s *Store) GetUsersWithShareAccess(ctx context.Context, computerID int64, shareName, perm string) ([]int64, error) {
	p, err := domain.ParsePermission(perm)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT userid FROM shares WHERE computerid = ? AND name = ? AND `+p.Predicate(),
		strconv.FormatInt(computerID, 10), shareName)
	if err != nil {
		return nil, storeErr("get users with share access", fmt.Errorf("failed to query shares: %w", err))
	}
	ids, err := scanIDs(rows)
	return ids, storeErr("get users with share access", err)
}

func (s *Store) queryShares(ctx context.Context, query string, args ...any) ([]domain.Share, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("get shares", fmt.Errorf("failed to query shares: %w", err))
	}
	shares, err := scanShares(rows)
	return shares, storeErr("get shares", err)
}
