package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"reconstore/internal/domain"
	"reconstore/internal/metrics"
)

// RecordCredential stores a credential found during a scan.
//
// A supplied group or pillaged-from host that does not exist aborts the call
// with id 0 and no error. Rows are matched on (domain, username, credtype)
// case-insensitively; bare pre-registered accounts for the same
// (domain, username) match too. When a row with a secret already holds the
// key nothing changes; otherwise the first bare match is filled in, and with
// no bare match a new row is inserted. The returned id is the inserted or
// upgraded row, or 0 when nothing changed.
func (s *Store) RecordCredential(ctx context.Context, obs domain.CredentialObservation) (int64, error) {
	obs.Domain = domain.NormalizeDomain(obs.Domain)

	var id int64
	err := s.withTx(ctx, "record credential", func(tx *sql.Tx) error {
		if ok, err := s.referencesValid(ctx, tx, obs.GroupID, obs.PillagedFrom); err != nil || !ok {
			if err == nil {
				s.record(metrics.EntityCredential, metrics.OutcomeSkipped)
				s.log.Debug().Str("username", obs.Username).Int64("group_id", obs.GroupID).
					Int64("pillaged_from", obs.PillagedFrom).Msg("credential references unknown row, skipped")
			}
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT `+credentialColumns+` FROM users
			WHERE LOWER(domain) = LOWER(?) AND LOWER(username) = LOWER(?)
			AND (LOWER(credtype) = LOWER(?) OR credtype IS NULL OR credtype = '')
		`, obs.Domain, obs.Username, obs.CredType)
		if err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		matches, err := scanCredentials(rows)
		if err != nil {
			return err
		}

		// A row already holding a secret under this credtype owns the key
		for _, c := range matches {
			if !c.IsBare() && strings.EqualFold(c.CredType, obs.CredType) {
				s.record(metrics.EntityCredential, metrics.OutcomeUnchanged)
				return nil
			}
		}

		for _, c := range matches {
			if !c.IsBare() {
				continue
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE users SET password = ?, credtype = ?, pillaged_from_computerid = ? WHERE id = ?
			`, obs.Password, obs.CredType, idToNull(obs.PillagedFrom), c.ID); err != nil {
				return fmt.Errorf("failed to update credential %d: %w", c.ID, err)
			}
			id = c.ID
			s.record(metrics.EntityCredential, metrics.OutcomeUpdated)

			if obs.GroupID != 0 {
				return s.ensureGroupEdge(ctx, tx, c.ID, obs.GroupID)
			}
			return nil
		}

		// Nothing holds the key and no bare row is left to fill
		id, err = s.insertCredential(ctx, tx, obs)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug().Str("credtype", obs.CredType).Str("domain", obs.Domain).Str("username", obs.Username).
		Int64("group_id", obs.GroupID).Int64("pillaged_from", obs.PillagedFrom).Int64("id", id).Msg("credential recorded")
	return id, nil
}

func (s *Store) insertCredential(ctx context.Context, tx *sql.Tx, obs domain.CredentialObservation) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO users (domain, username, password, credtype, pillaged_from_computerid)
		VALUES (?, ?, ?, ?, ?)
	`, obs.Domain, obs.Username, obs.Password, obs.CredType, idToNull(obs.PillagedFrom))
	if err != nil {
		return 0, fmt.Errorf("failed to insert credential: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read credential id: %w", err)
	}
	s.record(metrics.EntityCredential, metrics.OutcomeInserted)

	if obs.GroupID != 0 {
		if err := s.insertGroupEdge(ctx, tx, id, obs.GroupID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// RecordUser pre-registers an account that has no secret yet. Matching is on
// (domain, username) case-insensitively.
//
// An existing row is rewritten only when both domain and username differ from
// what is stored, unless the store was opened WithIndependentUserUpdates.
func (s *Store) RecordUser(ctx context.Context, domainName, username string, groupID int64) (int64, error) {
	domainName = domain.NormalizeDomain(domainName)

	var id int64
	err := s.withTx(ctx, "record user", func(tx *sql.Tx) error {
		if ok, err := s.referencesValid(ctx, tx, groupID, 0); err != nil || !ok {
			if err == nil {
				s.record(metrics.EntityCredential, metrics.OutcomeSkipped)
				s.log.Debug().Str("username", username).Int64("group_id", groupID).Msg("user references unknown group, skipped")
			}
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT `+credentialColumns+` FROM users
			WHERE LOWER(domain) = LOWER(?) AND LOWER(username) = LOWER(?)
		`, domainName, username)
		if err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		matches, err := scanCredentials(rows)
		if err != nil {
			return err
		}

		if len(matches) == 0 {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO users (domain, username, password, credtype, pillaged_from_computerid)
				VALUES (?, ?, '', '', NULL)
			`, domainName, username)
			if err != nil {
				return fmt.Errorf("failed to insert user: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to read user id: %w", err)
			}
			s.record(metrics.EntityCredential, metrics.OutcomeInserted)
			if groupID != 0 {
				return s.insertGroupEdge(ctx, tx, id, groupID)
			}
			return nil
		}

		id = matches[0].ID
		for _, c := range matches {
			if err := s.updateUserKey(ctx, tx, c, domainName, username); err != nil {
				return err
			}
			if groupID != 0 {
				if err := s.ensureGroupEdge(ctx, tx, c.ID, groupID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug().Str("domain", domainName).Str("username", username).Int64("group_id", groupID).Int64("id", id).Msg("user recorded")
	return id, nil
}

func (s *Store) updateUserKey(ctx context.Context, tx *sql.Tx, c domain.Credential, domainName, username string) error {
	domainDiffers := domainName != c.Domain
	usernameDiffers := username != c.Username

	var err error
	switch {
	case domainDiffers && usernameDiffers:
		_, err = tx.ExecContext(ctx, `UPDATE users SET domain = ?, username = ? WHERE id = ?`, domainName, username, c.ID)
	case !s.independentUserUpdates:
		s.record(metrics.EntityCredential, metrics.OutcomeUnchanged)
		return nil
	case domainDiffers:
		_, err = tx.ExecContext(ctx, `UPDATE users SET domain = ? WHERE id = ?`, domainName, c.ID)
	case usernameDiffers:
		_, err = tx.ExecContext(ctx, `UPDATE users SET username = ? WHERE id = ?`, username, c.ID)
	default:
		s.record(metrics.EntityCredential, metrics.OutcomeUnchanged)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", c.ID, err)
	}

	s.record(metrics.EntityCredential, metrics.OutcomeUpdated)
	return nil
}

// referencesValid checks optional foreign ids; 0 means not supplied
func (s *Store) referencesValid(ctx context.Context, q querier, groupID, computerID int64) (bool, error) {
	if groupID != 0 {
		ok, err := exists(ctx, q, tableGroups, groupID)
		if err != nil || !ok {
			return false, err
		}
	}
	if computerID != 0 {
		ok, err := exists(ctx, q, tableComputers, computerID)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// RemoveCredentials deletes the listed users rows one by one. Relations that
// point at them are left in place.
func (s *Store) RemoveCredentials(ctx context.Context, ids []int64) error {
	return s.withTx(ctx, "remove credentials", func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete credential %d: %w", id, err)
			}
		}
		return nil
	})
}

// IsUserValid reports whether a users row with this id exists
func (s *Store) IsUserValid(ctx context.Context, id int64) (bool, error) {
	ok, err := exists(ctx, s.db, tableUsers, id)
	return ok, storeErr("is user valid", err)
}

// IsCredentialValid reports whether a users row with this id exists and has
// a password column set. Bare accounts store '' and count as valid.
func (s *Store) IsCredentialValid(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ? AND password IS NOT NULL LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr("is credential valid", err)
	}
	return true, nil
}

// IsCredentialLocal reports whether the credential's domain names a known
// host, which is how local (non-domain) accounts are recorded
func (s *Store) IsCredentialLocal(ctx context.Context, id int64) (bool, error) {
	var credDomain sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT domain FROM users WHERE id = ?`, id).Scan(&credDomain)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr("is credential local", err)
	}
	if !credDomain.Valid || credDomain.String == "" {
		return false, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM computers WHERE LOWER(hostname) = LOWER(?) LIMIT 1`, credDomain.String).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr("is credential local", err)
	}
	return true, nil
}

// GetCredentials returns credentials: by id when filter is a valid credential
// id, by exact credtype when one is given, by username substring for any
// other non-empty filter, else all rows.
func (s *Store) GetCredentials(ctx context.Context, filter, credType string) ([]domain.Credential, error) {
	term := domain.FilterTerm(filter)

	if id, ok := term.ID(); ok {
		valid, err := s.IsCredentialValid(ctx, id)
		if err != nil {
			return nil, err
		}
		if valid {
			return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM users WHERE id = ?`, id)
		}
	}

	switch {
	case credType != "":
		return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM users WHERE credtype = ?`, credType)
	case !term.IsEmpty():
		return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM users WHERE LOWER(username) LIKE LOWER(?)`, term.Pattern())
	default:
		return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM users`)
	}
}

// GetUsers returns users rows by id, username substring, or all
func (s *Store) GetUsers(ctx context.Context, filter string) ([]domain.Credential, error) {
	term := domain.FilterTerm(filter)

	if id, ok := term.ID(); ok {
		valid, err := s.IsUserValid(ctx, id)
		if err != nil {
			return nil, err
		}
		if valid {
			return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM users WHERE id = ? LIMIT 1`, id)
		}
	}

	if !term.IsEmpty() {
		return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM users WHERE LOWER(username) LIKE LOWER(?)`, term.Pattern())
	}
	return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM users`)
}

// GetUser returns the users rows for an exact (domain, username), compared
// case-insensitively
func (s *Store) GetUser(ctx context.Context, domainName, username string) ([]domain.Credential, error) {
	return s.queryCredentials(ctx, `
		SELECT `+credentialColumns+` FROM users WHERE LOWER(domain) = LOWER(?) AND LOWER(username) = LOWER(?)
	`, domain.NormalizeDomain(domainName), username)
}

func (s *Store) queryCredentials(ctx context.Context, query string, args ...any) ([]domain.Credential, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("get credentials", fmt.Errorf("failed to query users: %w", err))
	}
	creds, err := scanCredentials(rows)
	return creds, storeErr("get credentials", err)
}
