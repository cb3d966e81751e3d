package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconstore/internal/domain"
)

// seedAdminFixture stores two identical credential rows and three hosts in
// 10.0.0.0/24
func seedAdminFixture(t *testing.T, s *Store) (users, hosts []int64) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := s.db.Exec(`
			INSERT INTO users (domain, username, password, credtype) VALUES ('CORP', 'admin', 'P@ss', 'plaintext')
		`)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		users = append(users, id)
	}

	for i := 1; i <= 3; i++ {
		id, err := s.RecordComputer(ctx, domain.ComputerObservation{IP: fmt.Sprintf("10.0.0.%d", i)})
		require.NoError(t, err)
		hosts = append(hosts, id)
	}
	return users, hosts
}

var adminObs = domain.AdminObservation{
	CredType: "plaintext",
	Domain:   "corp.local",
	Username: "ADMIN",
	Password: "P@ss",
	Host:     "10.0.0.%",
}

func TestRecordAdminEdgePositional(t *testing.T) {
	s := newTestStore(t)
	users, hosts := seedAdminFixture(t, s)
	ctx := context.Background()

	created, err := s.RecordAdminEdge(ctx, adminObs)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	rels, err := s.GetAdminRelations(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, users[0], rels[0].UserID)
	assert.Equal(t, hosts[0], rels[0].ComputerID)
	assert.Equal(t, users[1], rels[1].UserID)
	assert.Equal(t, hosts[1], rels[1].ComputerID)

	// Third host was never paired
	third, err := s.GetAdminRelations(ctx, 0, hosts[2])
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestRecordAdminEdgeCrossProduct(t *testing.T) {
	s := newTestStore(t, WithAdminLinkMode(AdminLinkCrossProduct))
	seedAdminFixture(t, s)

	created, err := s.RecordAdminEdge(context.Background(), adminObs)
	require.NoError(t, err)
	assert.Equal(t, 6, created)
	assert.Equal(t, 6, countRows(t, s, tableAdminRelations))
}

func TestRecordAdminEdgeIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedAdminFixture(t, s)
	ctx := context.Background()

	_, err := s.RecordAdminEdge(ctx, adminObs)
	require.NoError(t, err)

	created, err := s.RecordAdminEdge(ctx, adminObs)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, 2, countRows(t, s, tableAdminRelations))
}

func TestRecordAdminEdgeByUserID(t *testing.T) {
	s := newTestStore(t)
	users, hosts := seedAdminFixture(t, s)
	ctx := context.Background()

	created, err := s.RecordAdminEdge(ctx, domain.AdminObservation{UserID: users[1], Host: "10.0.0.3"})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	rels, err := s.GetAdminRelations(ctx, users[1], 0)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, hosts[2], rels[0].ComputerID)
}

func TestRecordAdminEdgeNoMatch(t *testing.T) {
	s := newTestStore(t)
	seedAdminFixture(t, s)
	ctx := context.Background()

	obs := adminObs
	obs.Password = "wrong"
	created, err := s.RecordAdminEdge(ctx, obs)
	require.NoError(t, err)
	assert.Zero(t, created)

	obs = adminObs
	obs.Host = "192.168.%"
	created, err = s.RecordAdminEdge(ctx, obs)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestRemoveAdminRelations(t *testing.T) {
	s := newTestStore(t, WithAdminLinkMode(AdminLinkCrossProduct))
	users, hosts := seedAdminFixture(t, s)
	ctx := context.Background()

	_, err := s.RecordAdminEdge(ctx, adminObs)
	require.NoError(t, err)

	// User ids win; the host list is not applied alongside them
	require.NoError(t, s.RemoveAdminRelations(ctx, users[:1], hosts))
	assert.Equal(t, 3, countRows(t, s, tableAdminRelations))

	require.NoError(t, s.RemoveAdminRelations(ctx, nil, hosts[:1]))
	rels, err := s.GetAdminRelations(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	for _, r := range rels {
		assert.Equal(t, users[1], r.UserID)
		assert.NotEqual(t, hosts[0], r.ComputerID)
	}

	require.NoError(t, s.RemoveAdminRelations(ctx, nil, nil))
	assert.Equal(t, 2, countRows(t, s, tableAdminRelations))
}

func TestGroupRelations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admins, err := s.RecordGroup(ctx, "CORP", "Domain Admins")
	require.NoError(t, err)
	users, err := s.RecordGroup(ctx, "CORP", "Domain Users")
	require.NoError(t, err)

	alice, err := s.RecordUser(ctx, "CORP", "alice", admins)
	require.NoError(t, err)
	_, err = s.RecordUser(ctx, "CORP", "alice", users)
	require.NoError(t, err)
	bob, err := s.RecordUser(ctx, "CORP", "bob", users)
	require.NoError(t, err)

	byUser, err := s.GetGroupRelations(ctx, alice, 0)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byGroup, err := s.GetGroupRelations(ctx, 0, users)
	require.NoError(t, err)
	assert.Len(t, byGroup, 2)

	both, err := s.GetGroupRelations(ctx, bob, admins)
	require.NoError(t, err)
	assert.Empty(t, both)

	require.NoError(t, s.RemoveGroupRelations(ctx, alice, 0))
	all, err := s.GetGroupRelations(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.GroupRelation{ID: all[0].ID, UserID: bob, GroupID: users}, all[0])

	require.NoError(t, s.RemoveGroupRelations(ctx, 0, users))
	assert.Equal(t, 0, countRows(t, s, tableGroupRelations))
}

func TestRecordLoggedInEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	host, err := s.RecordComputer(ctx, domain.ComputerObservation{IP: "10.0.0.30"})
	require.NoError(t, err)
	user, err := s.RecordUser(ctx, "CORP", "mallory", 0)
	require.NoError(t, err)

	id, err := s.RecordLoggedInEdge(ctx, user, host)
	require.NoError(t, err)
	assert.NotZero(t, id)

	again, err := s.RecordLoggedInEdge(ctx, user, host)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	skipped, err := s.RecordLoggedInEdge(ctx, user, host+10)
	require.NoError(t, err)
	assert.Zero(t, skipped)

	rels, err := s.GetLoggedInRelations(ctx, 0, host)
	require.NoError(t, err)
	assert.Equal(t, []domain.LoggedInRelation{{ID: id, UserID: user, ComputerID: host}}, rels)
}
