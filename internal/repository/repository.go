package repository

import (
	"context"

	"reconstore/internal/domain"
)

// Repository defines the interface for recon data access
type Repository interface {
	// Reconciliation
	RecordComputer(ctx context.Context, obs domain.ComputerObservation) (int64, error)
	RecordCredential(ctx context.Context, obs domain.CredentialObservation) (int64, error)
	RecordUser(ctx context.Context, domainName, username string, groupID int64) (int64, error)
	RecordGroup(ctx context.Context, domainName, name string) (int64, error)
	RecordShare(ctx context.Context, share domain.Share) (int64, error)
	RecordAdminEdge(ctx context.Context, obs domain.AdminObservation) (int, error)
	RecordLoggedInEdge(ctx context.Context, userID, computerID int64) (int64, error)

	// Validity
	IsComputerValid(ctx context.Context, id int64) (bool, error)
	IsUserValid(ctx context.Context, id int64) (bool, error)
	IsCredentialValid(ctx context.Context, id int64) (bool, error)
	IsGroupValid(ctx context.Context, id int64) (bool, error)
	IsShareValid(ctx context.Context, id int64) (bool, error)
	IsCredentialLocal(ctx context.Context, id int64) (bool, error)

	// Queries
	GetComputers(ctx context.Context, filter, domainName string) ([]domain.Computer, error)
	GetDomainControllers(ctx context.Context, domainName string) ([]domain.Computer, error)
	GetCredentials(ctx context.Context, filter, credType string) ([]domain.Credential, error)
	GetUsers(ctx context.Context, filter string) ([]domain.Credential, error)
	GetUser(ctx context.Context, domainName, username string) ([]domain.Credential, error)
	GetGroups(ctx context.Context, filter, name, domainName string) ([]domain.Group, error)
	GetShares(ctx context.Context, filter string) ([]domain.Share, error)
	GetSharesByAccess(ctx context.Context, perm string, shareID int64) ([]domain.Share, error)
	GetUsersWithShareAccess(ctx context.Context, computerID int64, shareName, perm string) ([]int64, error)
	GetAdminRelations(ctx context.Context, userID, hostID int64) ([]domain.AdminRelation, error)
	GetGroupRelations(ctx context.Context, userID, groupID int64) ([]domain.GroupRelation, error)
	GetLoggedInRelations(ctx context.Context, userID, hostID int64) ([]domain.LoggedInRelation, error)
	Snapshot(ctx context.Context) (*domain.Snapshot, error)

	// Deletion
	RemoveCredentials(ctx context.Context, ids []int64) error
	RemoveAdminRelations(ctx context.Context, userIDs, hostIDs []int64) error
	RemoveGroupRelations(ctx context.Context, userID, groupID int64) error

	// Close releases resources
	Close() error
}
