package sqlite

import (
	"context"

	"reconstore/internal/domain"
)

// Snapshot reads every table in storage order
func (s *Store) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	var (
		snap domain.Snapshot
		err  error
	)

	if snap.Computers, err = s.GetComputers(ctx, "", ""); err != nil {
		return nil, err
	}
	if snap.Credentials, err = s.GetUsers(ctx, ""); err != nil {
		return nil, err
	}
	if snap.Groups, err = s.GetGroups(ctx, "", "", ""); err != nil {
		return nil, err
	}
	if snap.Shares, err = s.GetShares(ctx, ""); err != nil {
		return nil, err
	}
	if snap.AdminRelations, err = s.GetAdminRelations(ctx, 0, 0); err != nil {
		return nil, err
	}
	if snap.GroupRelations, err = s.GetGroupRelations(ctx, 0, 0); err != nil {
		return nil, err
	}
	if snap.LoggedInRelations, err = s.GetLoggedInRelations(ctx, 0, 0); err != nil {
		return nil, err
	}

	return &snap, nil
}
