package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"reconstore/internal/domain"
	"reconstore/internal/metrics"
)

// RecordAdminEdge links the credential described by obs to the hosts whose
// IP matches obs.Host. Users are resolved by obs.UserID when set, otherwise
// by credtype, domain, username and password. With AdminLinkPositional the
// i-th user is paired with the i-th host only. Existing edges are skipped.
// It returns the number of edges created.
func (s *Store) RecordAdminEdge(ctx context.Context, obs domain.AdminObservation) (int, error) {
	obs.Domain = domain.NormalizeDomain(obs.Domain)

	var created int
	err := s.withTx(ctx, "record admin edge", func(tx *sql.Tx) error {
		var (
			rows *sql.Rows
			err  error
		)
		if obs.UserID != 0 {
			rows, err = tx.QueryContext(ctx, `SELECT id FROM users WHERE id = ?`, obs.UserID)
		} else {
			rows, err = tx.QueryContext(ctx, `
				SELECT id FROM users
				WHERE credtype = ? AND LOWER(domain) = LOWER(?) AND LOWER(username) = LOWER(?) AND password = ?
			`, obs.CredType, obs.Domain, obs.Username, obs.Password)
		}
		if err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		users, err := scanIDs(rows)
		if err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, `SELECT id FROM computers WHERE ip LIKE ?`, obs.Host)
		if err != nil {
			return fmt.Errorf("failed to query computers: %w", err)
		}
		hosts, err := scanIDs(rows)
		if err != nil {
			return err
		}

		for _, pair := range linkPairs(s.adminLink, users, hosts) {
			linked, err := edgeExists(ctx, tx, tableAdminRelations, "computerid", pair.userID, pair.otherID)
			if err != nil {
				return err
			}
			if linked {
				s.record(metrics.EntityAdminRelation, metrics.OutcomeUnchanged)
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO admin_relations (userid, computerid) VALUES (?, ?)
			`, pair.userID, pair.otherID); err != nil {
				return fmt.Errorf("failed to insert admin relation: %w", err)
			}
			s.record(metrics.EntityAdminRelation, metrics.OutcomeInserted)
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug().Str("username", obs.Username).Str("host", obs.Host).Int64("user_id", obs.UserID).
		Int("created", created).Msg("admin edges recorded")
	return created, nil
}

type idPair struct {
	userID  int64
	otherID int64
}

// linkPairs pairs users with hosts according to mode
func linkPairs(mode AdminLinkMode, users, hosts []int64) []idPair {
	var pairs []idPair

	if mode == AdminLinkCrossProduct {
		for _, u := range users {
			for _, h := range hosts {
				pairs = append(pairs, idPair{userID: u, otherID: h})
			}
		}
		return pairs
	}

	n := min(len(users), len(hosts))
	for i := 0; i < n; i++ {
		pairs = append(pairs, idPair{userID: users[i], otherID: hosts[i]})
	}
	return pairs
}

// edgeExists checks a relation table for a (userid, column) pair
func edgeExists(ctx context.Context, q querier, table, column string, userID, otherID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE userid = ? AND `+column+` = ? LIMIT 1`, userID, otherID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return true, nil
}

func (s *Store) insertGroupEdge(ctx context.Context, q querier, userID, groupID int64) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO group_relations (userid, groupid) VALUES (?, ?)`, userID, groupID); err != nil {
		return fmt.Errorf("failed to insert group relation: %w", err)
	}
	s.record(metrics.EntityGroupRelation, metrics.OutcomeInserted)
	return nil
}

func (s *Store) ensureGroupEdge(ctx context.Context, q querier, userID, groupID int64) error {
	linked, err := edgeExists(ctx, q, tableGroupRelations, "groupid", userID, groupID)
	if err != nil {
		return err
	}
	if linked {
		s.record(metrics.EntityGroupRelation, metrics.OutcomeUnchanged)
		return nil
	}
	return s.insertGroupEdge(ctx, q, userID, groupID)
}

// RecordLoggedInEdge records that a user was seen logged in to a computer.
// Unknown ids are skipped with id 0; an existing edge returns its id.
func (s *Store) RecordLoggedInEdge(ctx context.Context, userID, computerID int64) (int64, error) {
	var id int64
	err := s.withTx(ctx, "record loggedin edge", func(tx *sql.Tx) error {
		userOK, err := exists(ctx, tx, tableUsers, userID)
		if err != nil {
			return err
		}
		hostOK, err := exists(ctx, tx, tableComputers, computerID)
		if err != nil {
			return err
		}
		if !userOK || !hostOK {
			s.record(metrics.EntityLoggedInRelation, metrics.OutcomeSkipped)
			return nil
		}

		err = tx.QueryRowContext(ctx, `
			SELECT id FROM loggedin_relations WHERE userid = ? AND computerid = ? LIMIT 1
		`, userID, computerID).Scan(&id)
		if err == nil {
			s.record(metrics.EntityLoggedInRelation, metrics.OutcomeUnchanged)
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to query loggedin relations: %w", err)
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO loggedin_relations (userid, computerid) VALUES (?, ?)`, userID, computerID)
		if err != nil {
			return fmt.Errorf("failed to insert loggedin relation: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read loggedin relation id: %w", err)
		}
		s.record(metrics.EntityLoggedInRelation, metrics.OutcomeInserted)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetAdminRelations returns admin edges of one user, else of one host, else all
func (s *Store) GetAdminRelations(ctx context.Context, userID, hostID int64) ([]domain.AdminRelation, error) {
	edges, err := s.queryEdges(ctx, tableAdminRelations, "computerid", userID, hostID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AdminRelation, 0, len(edges))
	for _, e := range edges {
		out = append(out, domain.AdminRelation{ID: e.ID, UserID: nullToID(e.UserID), ComputerID: nullToID(e.OtherID)})
	}
	return out, nil
}

// GetLoggedInRelations returns loggedin edges of one user, else of one host, else all
func (s *Store) GetLoggedInRelations(ctx context.Context, userID, hostID int64) ([]domain.LoggedInRelation, error) {
	edges, err := s.queryEdges(ctx, tableLoggedInRelations, "computerid", userID, hostID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.LoggedInRelation, 0, len(edges))
	for _, e := range edges {
		out = append(out, domain.LoggedInRelation{ID: e.ID, UserID: nullToID(e.UserID), ComputerID: nullToID(e.OtherID)})
	}
	return out, nil
}

// GetGroupRelations returns group edges matching both ids when both are
// given, else either one, else all
func (s *Store) GetGroupRelations(ctx context.Context, userID, groupID int64) ([]domain.GroupRelation, error) {
	if userID == 0 || groupID == 0 {
		edges, err := s.queryEdges(ctx, tableGroupRelations, "groupid", userID, groupID)
		if err != nil {
			return nil, err
		}
		return toGroupRelations(edges), nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, userid, groupid FROM group_relations WHERE userid = ? AND groupid = ?
	`, userID, groupID)
	if err != nil {
		return nil, storeErr("get group relations", fmt.Errorf("failed to query group relations: %w", err))
	}

	edges, err := scanEdges(rows)
	if err != nil {
		return nil, storeErr("get group relations", err)
	}
	return toGroupRelations(edges), nil
}

func toGroupRelations(edges []edgeRow) []domain.GroupRelation {
	out := make([]domain.GroupRelation, 0, len(edges))
	for _, e := range edges {
		out = append(out, domain.GroupRelation{ID: e.ID, UserID: nullToID(e.UserID), GroupID: nullToID(e.OtherID)})
	}
	return out
}

// queryEdges selects a relation table by user id, else by the other id, else everything
func (s *Store) queryEdges(ctx context.Context, table, column string, userID, otherID int64) ([]edgeRow, error) {
	base := `SELECT id, userid, ` + column + ` FROM ` + table

	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case userID != 0:
		rows, err = s.db.QueryContext(ctx, base+` WHERE userid = ?`, userID)
	case otherID != 0:
		rows, err = s.db.QueryContext(ctx, base+` WHERE `+column+` = ?`, otherID)
	default:
		rows, err = s.db.QueryContext(ctx, base)
	}
	if err != nil {
		return nil, storeErr("get "+table, fmt.Errorf("failed to query %s: %w", table, err))
	}

	edges, err := scanEdges(rows)
	return edges, storeErr("get "+table, err)
}

// RemoveAdminRelations deletes admin edges of the listed users, or, when no
// user ids are given, of the listed hosts. The two lists are never combined.
func (s *Store) RemoveAdminRelations(ctx context.Context, userIDs, hostIDs []int64) error {
	column, ids := "userid", userIDs
	if len(userIDs) == 0 {
		column, ids = "computerid", hostIDs
	}

	return s.withTx(ctx, "remove admin relations", func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM admin_relations WHERE `+column+` = ?`, id); err != nil {
				return fmt.Errorf("failed to delete admin relations for %s %d: %w", column, id, err)
			}
		}
		return nil
	})
}

// RemoveGroupRelations deletes group edges of a user, or, when userID is 0,
// of a group
func (s *Store) RemoveGroupRelations(ctx context.Context, userID, groupID int64) error {
	var err error
	switch {
	case userID != 0:
		_, err = s.db.ExecContext(ctx, `DELETE FROM group_relations WHERE userid = ?`, userID)
	case groupID != 0:
		_, err = s.db.ExecContext(ctx, `DELETE FROM group_relations WHERE groupid = ?`, groupID)
	default:
		return nil
	}
	if err != nil {
		return storeErr("remove group relations", fmt.Errorf("failed to delete group relations: %w", err))
	}
	return nil
}
