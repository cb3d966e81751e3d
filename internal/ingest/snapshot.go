package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"reconstore/internal/domain"
)

// SnapshotRecorder is the part of the store a snapshot replay writes through
type SnapshotRecorder interface {
	RecordComputer(ctx context.Context, obs domain.ComputerObservation) (int64, error)
	RecordGroup(ctx context.Context, domainName, name string) (int64, error)
	RecordCredential(ctx context.Context, obs domain.CredentialObservation) (int64, error)
	RecordUser(ctx context.Context, domainName, username string, groupID int64) (int64, error)
	GetUser(ctx context.Context, domainName, username string) ([]domain.Credential, error)
	RecordShare(ctx context.Context, share domain.Share) (int64, error)
	RecordAdminEdge(ctx context.Context, obs domain.AdminObservation) (int, error)
	RecordLoggedInEdge(ctx context.Context, userID, computerID int64) (int64, error)
}

// ReplayResult counts rows replayed and rows skipped because a referenced
// row was missing from the snapshot or could not be recorded
type ReplayResult struct {
	Replayed int
	Skipped  int
}

// Replayer feeds an exported snapshot back through the reconcile operations,
// so importing into a non-empty store merges instead of overwriting. Ids in
// the snapshot are remapped to the ids the target store assigns.
type Replayer struct {
	store SnapshotRecorder
	log   zerolog.Logger

	computers map[int64]int64
	hostIPs   map[int64]string
	groups    map[int64]int64
	users     map[int64]int64
	userKeys  map[int64]domain.Credential
}

// NewReplayer creates a Replayer writing to store
func NewReplayer(store SnapshotRecorder, log zerolog.Logger) *Replayer {
	return &Replayer{store: store, log: log}
}

// Replay records every row of snap. Failures are collected and returned
// together after all rows were attempted.
func (r *Replayer) Replay(ctx context.Context, snap *domain.Snapshot) (ReplayResult, error) {
	r.computers = make(map[int64]int64)
	r.hostIPs = make(map[int64]string)
	r.groups = make(map[int64]int64)
	r.users = make(map[int64]int64)
	r.userKeys = make(map[int64]domain.Credential)

	var (
		result ReplayResult
		errs   *multierror.Error
	)
	tally := func(ok bool, err error) {
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if ok {
			result.Replayed++
		} else {
			result.Skipped++
		}
	}

	for _, c := range snap.Computers {
		tally(r.replayComputer(ctx, c))
	}
	for _, g := range snap.Groups {
		tally(r.replayGroup(ctx, g))
	}
	for _, c := range snap.Credentials {
		tally(r.replayCredential(ctx, c))
	}
	for _, rel := range snap.GroupRelations {
		tally(r.replayGroupRelation(ctx, rel))
	}
	for _, sh := range snap.Shares {
		tally(r.replayShare(ctx, sh))
	}
	for _, rel := range snap.AdminRelations {
		tally(r.replayAdminRelation(ctx, rel))
	}
	for _, rel := range snap.LoggedInRelations {
		tally(r.replayLoggedInRelation(ctx, rel))
	}

	r.log.Info().Int("replayed", result.Replayed).Int("skipped", result.Skipped).Msg("snapshot replayed")
	return result, errs.ErrorOrNil()
}

func (r *Replayer) replayComputer(ctx context.Context, c domain.Computer) (bool, error) {
	id, err := r.store.RecordComputer(ctx, domain.ComputerObservation{
		IP:         c.IP,
		Hostname:   c.Hostname,
		Domain:     c.Domain,
		OS:         c.OS,
		DC:         domain.Bool(c.DC),
		SMBv1:      c.SMBv1,
		Signing:    c.Signing,
		Spooler:    c.Spooler,
		Zerologon:  c.Zerologon,
		PetitPotam: c.PetitPotam,
	})
	if err != nil {
		return false, fmt.Errorf("computer %d (%s): %w", c.ID, c.IP, err)
	}
	r.computers[c.ID] = id
	r.hostIPs[c.ID] = c.IP
	return true, nil
}

func (r *Replayer) replayGroup(ctx context.Context, g domain.Group) (bool, error) {
	id, err := r.store.RecordGroup(ctx, g.Domain, g.Name)
	if err != nil {
		return false, fmt.Errorf("group %d (%s): %w", g.ID, g.Name, err)
	}
	r.groups[g.ID] = id
	return true, nil
}

func (r *Replayer) replayCredential(ctx context.Context, c domain.Credential) (bool, error) {
	r.userKeys[c.ID] = c

	if c.IsBare() {
		id, err := r.store.RecordUser(ctx, c.Domain, c.Username, 0)
		if err != nil {
			return false, fmt.Errorf("user %d (%s): %w", c.ID, c.Username, err)
		}
		r.users[c.ID] = id
		return id != 0, nil
	}

	id, err := r.store.RecordCredential(ctx, domain.CredentialObservation{
		CredType:     c.CredType,
		Domain:       c.Domain,
		Username:     c.Username,
		Password:     c.Password,
		PillagedFrom: r.computers[c.PillagedFrom],
	})
	if err != nil {
		return false, fmt.Errorf("credential %d (%s): %w", c.ID, c.Username, err)
	}

	// 0 means the store already held this secret; find the row it kept
	if id == 0 {
		if id, err = r.existingCredential(ctx, c); err != nil {
			return false, fmt.Errorf("credential %d (%s): %w", c.ID, c.Username, err)
		}
	}
	r.users[c.ID] = id
	return id != 0, nil
}

func (r *Replayer) existingCredential(ctx context.Context, c domain.Credential) (int64, error) {
	rows, err := r.store.GetUser(ctx, c.Domain, c.Username)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if strings.EqualFold(row.CredType, c.CredType) && row.Password == c.Password {
			return row.ID, nil
		}
	}
	for _, row := range rows {
		if strings.EqualFold(row.CredType, c.CredType) {
			return row.ID, nil
		}
	}
	return 0, nil
}

func (r *Replayer) replayGroupRelation(ctx context.Context, rel domain.GroupRelation) (bool, error) {
	key, okUser := r.userKeys[rel.UserID]
	groupID, okGroup := r.groups[rel.GroupID]
	if !okUser || !okGroup {
		return false, nil
	}

	if _, err := r.store.RecordUser(ctx, key.Domain, key.Username, groupID); err != nil {
		return false, fmt.Errorf("group relation %d: %w", rel.ID, err)
	}
	return true, nil
}

func (r *Replayer) replayShare(ctx context.Context, sh domain.Share) (bool, error) {
	computerID, okHost := r.computers[sh.ComputerID]
	userID, okUser := r.users[sh.UserID]
	if !okHost || !okUser || userID == 0 {
		return false, nil
	}

	sh.ComputerID, sh.UserID = computerID, userID
	if _, err := r.store.RecordShare(ctx, sh); err != nil {
		return false, fmt.Errorf("share %d (%s): %w", sh.ID, sh.Name, err)
	}
	return true, nil
}

func (r *Replayer) replayAdminRelation(ctx context.Context, rel domain.AdminRelation) (bool, error) {
	ip, okHost := r.hostIPs[rel.ComputerID]
	userID, okUser := r.users[rel.UserID]
	if !okHost || !okUser || userID == 0 {
		return false, nil
	}

	if _, err := r.store.RecordAdminEdge(ctx, domain.AdminObservation{UserID: userID, Host: ip}); err != nil {
		return false, fmt.Errorf("admin relation %d: %w", rel.ID, err)
	}
	return true, nil
}

func (r *Replayer) replayLoggedInRelation(ctx context.Context, rel domain.LoggedInRelation) (bool, error) {
	computerID, okHost := r.computers[rel.ComputerID]
	userID, okUser := r.users[rel.UserID]
	if !okHost || !okUser || userID == 0 {
		return false, nil
	}

	if _, err := r.store.RecordLoggedInEdge(ctx, userID, computerID); err != nil {
		return false, fmt.Errorf("loggedin relation %d: %w", rel.ID, err)
	}
	return true, nil
}
