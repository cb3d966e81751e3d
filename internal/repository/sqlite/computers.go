package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"reconstore/internal/domain"
	"reconstore/internal/metrics"
)

// RecordComputer inserts a host seen for the first time or updates the
// existing rows that share its IP. The IP alone is the match key, so a new
// hostname on a reused address overwrites the old one.
func (s *Store) RecordComputer(ctx context.Context, obs domain.ComputerObservation) (int64, error) {
	obs = obs.Normalized()

	var id int64
	err := s.withTx(ctx, "record computer", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT * FROM computers WHERE ip = ?`, obs.IP)
		if err != nil {
			return fmt.Errorf("failed to query computers: %w", err)
		}
		existing, err := scanComputers(rows)
		if err != nil {
			return err
		}

		if len(existing) == 0 {
			id, err = s.insertComputer(ctx, tx, obs)
			return err
		}

		id = existing[0].ID
		for _, c := range existing {
			if err := s.updateComputer(ctx, tx, c, obs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) insertComputer(ctx context.Context, tx *sql.Tx, obs domain.ComputerObservation) (int64, error) {
	dc := boolPtrToNull(obs.DC)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO computers (ip, hostname, domain, os, dc, smbv1, signing, spooler, zerologon, petitpotam)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, obs.IP, obs.Hostname, obs.Domain, obs.OS, dc, obs.SMBv1, obs.Signing, obs.Spooler, obs.Zerologon, obs.PetitPotam)

	outcome := metrics.OutcomeInserted
	if isSchemaCompatibility(err) {
		s.log.Warn().Err(err).Str("ip", obs.IP).Msg("computers table lacks optional columns, inserting core columns only")
		outcome = metrics.OutcomeDegraded
		res, err = tx.ExecContext(ctx, `
			INSERT INTO computers (ip, hostname, domain, os, dc) VALUES (?, ?, ?, ?, ?)
		`, obs.IP, obs.Hostname, obs.Domain, obs.OS, dc)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert computer: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read computer id: %w", err)
	}

	s.record(metrics.EntityComputer, outcome)
	s.log.Debug().Int64("id", id).Str("ip", obs.IP).Str("hostname", obs.Hostname).Msg("computer inserted")
	return id, nil
}

func (s *Store) updateComputer(ctx context.Context, tx *sql.Tx, c domain.Computer, obs domain.ComputerObservation) error {
	changed := false

	if obs.DiffersFrom(c) {
		_, err := tx.ExecContext(ctx, `
			UPDATE computers
			SET hostname = ?, domain = ?, os = ?, smbv1 = ?, signing = ?, spooler = ?, zerologon = ?, petitpotam = ?
			WHERE id = ?
		`, obs.Hostname, obs.Domain, obs.OS, obs.SMBv1, obs.Signing, obs.Spooler, obs.Zerologon, obs.PetitPotam, c.ID)

		if isSchemaCompatibility(err) {
			s.log.Warn().Err(err).Int64("id", c.ID).Msg("computers table lacks optional columns, updating core columns only")
			s.record(metrics.EntityComputer, metrics.OutcomeDegraded)
			_, err = tx.ExecContext(ctx, `
				UPDATE computers SET hostname = ?, domain = ?, os = ? WHERE id = ?
			`, obs.Hostname, obs.Domain, obs.OS, c.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to update computer %d: %w", c.ID, err)
		}
		changed = true
	}

	// The DC flag is applied on its own so a probe that only learns DC status
	// still records it.
	if obs.DCChanged(c) {
		if _, err := tx.ExecContext(ctx, `UPDATE computers SET dc = ? WHERE id = ?`, *obs.DC, c.ID); err != nil {
			return fmt.Errorf("failed to update dc flag for computer %d: %w", c.ID, err)
		}
		changed = true
	}

	if !changed {
		s.record(metrics.EntityComputer, metrics.OutcomeUnchanged)
		return nil
	}

	s.record(metrics.EntityComputer, metrics.OutcomeUpdated)
	s.log.Debug().Int64("id", c.ID).Str("ip", obs.IP).Str("hostname", obs.Hostname).Msg("computer updated")
	return nil
}

// IsComputerValid reports whether a computer with this id exists
func (s *Store) IsComputerValid(ctx context.Context, id int64) (bool, error) {
	ok, err := exists(ctx, s.db, tableComputers, id)
	return ok, storeErr("is computer valid", err)
}

// GetComputers returns hosts selected by filter: a computer id returns that
// row, "dc" returns domain controllers (optionally of one domain), any other
// non-empty term matches IP or hostname substrings, and "" returns all.
func (s *Store) GetComputers(ctx context.Context, filter, domainName string) ([]domain.Computer, error) {
	term := domain.FilterTerm(filter)

	if id, ok := term.ID(); ok {
		valid, err := s.IsComputerValid(ctx, id)
		if err != nil {
			return nil, err
		}
		if valid {
			return s.queryComputers(ctx, `SELECT * FROM computers WHERE id = ? LIMIT 1`, id)
		}
	}

	switch {
	case filter == domain.DCFilter && domainName != "":
		return s.queryComputers(ctx, `SELECT * FROM computers WHERE dc = 1 AND LOWER(domain) = LOWER(?)`, domain.NormalizeDomain(domainName))
	case filter == domain.DCFilter:
		return s.queryComputers(ctx, `SELECT * FROM computers WHERE dc = 1`)
	case !term.IsEmpty():
		return s.queryComputers(ctx, `SELECT * FROM computers WHERE ip LIKE ? OR LOWER(hostname) LIKE LOWER(?)`, term.Pattern(), term.Pattern())
	default:
		return s.queryComputers(ctx, `SELECT * FROM computers`)
	}
}

// GetDomainControllers returns hosts flagged as DCs, optionally of one domain
func (s *Store) GetDomainControllers(ctx context.Context, domainName string) ([]domain.Computer, error) {
	return s.GetComputers(ctx, domain.DCFilter, domainName)
}

func (s *Store) queryComputers(ctx context.Context, query string, args ...any) ([]domain.Computer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("get computers", fmt.Errorf("failed to query computers: %w", err))
	}
	computers, err := scanComputers(rows)
	return computers, storeErr("get computers", err)
}
