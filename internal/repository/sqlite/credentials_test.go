package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconstore/internal/domain"
)

func TestRecordCredentialInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordCredential(ctx, domain.CredentialObservation{
		CredType: domain.CredTypePlaintext,
		Domain:   "corp.local",
		Username: "alice",
		Password: "Summer2024!",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	creds, err := s.GetCredentials(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, domain.Credential{
		ID:       id,
		Domain:   "CORP",
		Username: "alice",
		Password: "Summer2024!",
		CredType: domain.CredTypePlaintext,
	}, creds[0])
}

func TestRecordCredentialDoesNotOverwriteSecret(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obs := domain.CredentialObservation{CredType: "plaintext", Domain: "CORP", Username: "alice", Password: "first"}
	first, err := s.RecordCredential(ctx, obs)
	require.NoError(t, err)

	obs.Password = "second"
	obs.Username = "ALICE"
	second, err := s.RecordCredential(ctx, obs)
	require.NoError(t, err)
	assert.Zero(t, second, "no row had an empty secret to fill")

	creds, err := s.GetCredentials(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, first, creds[0].ID)
	assert.Equal(t, "first", creds[0].Password)
	assert.Equal(t, "alice", creds[0].Username)
}

func TestRecordCredentialDifferentCredTypeIsNewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "plaintext", Domain: "CORP", Username: "bob", Password: "pw"})
	require.NoError(t, err)
	_, err = s.RecordCredential(ctx, domain.CredentialObservation{CredType: "hash", Domain: "CORP", Username: "bob", Password: "aad3b435b51404eeaad3b435b51404ee:31d6cfe0d16ae931b73c59d7e0c089c0"})
	require.NoError(t, err)

	assert.Equal(t, 2, countRows(t, s, tableUsers))

	hashes, err := s.GetCredentials(ctx, "", "hash")
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	assert.Equal(t, "hash", hashes[0].CredType)
}

func TestRecordCredentialUpgradesBareUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	host, err := s.RecordComputer(ctx, domain.ComputerObservation{IP: "10.0.0.5", Hostname: "WS05"})
	require.NoError(t, err)

	userID, err := s.RecordUser(ctx, "corp.local", "carol", 0)
	require.NoError(t, err)

	id, err := s.RecordCredential(ctx, domain.CredentialObservation{
		CredType: "hash", Domain: "CORP", Username: "Carol", Password: "deadbeef", PillagedFrom: host,
	})
	require.NoError(t, err)
	assert.Equal(t, userID, id)

	users, err := s.GetUsers(ctx, "")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "deadbeef", users[0].Password)
	assert.Equal(t, "hash", users[0].CredType)
	assert.Equal(t, host, users[0].PillagedFrom)
}

func TestRecordCredentialBareRowDoesNotSplitKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "plaintext", Domain: "corp", Username: "alice", Password: "P1"})
	require.NoError(t, err)
	_, err = s.RecordCredential(ctx, domain.CredentialObservation{Domain: "corp", Username: "alice"})
	require.NoError(t, err)

	id, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "PlainText", Domain: "corp", Username: "alice", Password: "P2"})
	require.NoError(t, err)
	assert.Zero(t, id)

	plain, err := s.GetCredentials(ctx, "", "plaintext")
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Equal(t, first, plain[0].ID)
	assert.Equal(t, "P1", plain[0].Password)

	// The bare row is still free for a different credtype
	hashID, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "hash", Domain: "corp", Username: "alice", Password: "deadbeef"})
	require.NoError(t, err)
	assert.NotZero(t, hashID)
	assert.NotEqual(t, first, hashID)
	assert.Equal(t, 2, countRows(t, s, tableUsers))
}

func TestRecordCredentialInsertsBesideOtherSecrets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordCredential(ctx, domain.CredentialObservation{Domain: "corp", Username: "frank", Password: "untyped"})
	require.NoError(t, err)

	id, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "plaintext", Domain: "corp", Username: "frank", Password: "pw"})
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, 2, countRows(t, s, tableUsers))

	plain, err := s.GetCredentials(ctx, "", "plaintext")
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Equal(t, "pw", plain[0].Password)
}

func TestRecordCredentialUnknownReferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordCredential(ctx, domain.CredentialObservation{
		CredType: "plaintext", Domain: "CORP", Username: "dave", Password: "pw", GroupID: 42,
	})
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = s.RecordCredential(ctx, domain.CredentialObservation{
		CredType: "plaintext", Domain: "CORP", Username: "dave", Password: "pw", PillagedFrom: 42,
	})
	require.NoError(t, err)
	assert.Zero(t, id)

	assert.Equal(t, 0, countRows(t, s, tableUsers))
	assert.Equal(t, 0, countRows(t, s, tableGroupRelations))
}

func TestRecordCredentialWithGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group, err := s.RecordGroup(ctx, "corp.local", "Domain Admins")
	require.NoError(t, err)

	id, err := s.RecordCredential(ctx, domain.CredentialObservation{
		CredType: "plaintext", Domain: "CORP", Username: "erin", Password: "pw", GroupID: group,
	})
	require.NoError(t, err)

	rels, err := s.GetGroupRelations(ctx, id, group)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestRecordCredentialThenUserDoesNotDuplicateGroupEdge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group, err := s.RecordGroup(ctx, "CORP", "IT")
	require.NoError(t, err)

	// Bare record with no secret
	id, err := s.RecordCredential(ctx, domain.CredentialObservation{Domain: "CORP", Username: "frank"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := s.RecordUser(ctx, "CORP", "frank", group)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	assert.Equal(t, 1, countRows(t, s, tableUsers))
	rels, err := s.GetGroupRelations(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestRecordUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.RecordUser(ctx, "corp.local", "grace", 0)
	require.NoError(t, err)
	assert.NotZero(t, id)

	again, err := s.RecordUser(ctx, "CORP", "GRACE", 0)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	users, err := s.GetUser(ctx, "corp", "grace")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsBare())
	// Only the username case differs, so the stored row keeps its spelling
	assert.Equal(t, "grace", users[0].Username)

	valid, err := s.IsCredentialValid(ctx, id)
	require.NoError(t, err)
	assert.True(t, valid, "bare users store an empty, non-NULL password")
}

func TestRecordUserIndependentUpdates(t *testing.T) {
	s := newTestStore(t, WithIndependentUserUpdates(true))
	ctx := context.Background()

	id, err := s.RecordUser(ctx, "CORP", "heidi", 0)
	require.NoError(t, err)

	_, err = s.RecordUser(ctx, "CORP", "Heidi", 0)
	require.NoError(t, err)

	users, err := s.GetUsers(ctx, "")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, id, users[0].ID)
	assert.Equal(t, "Heidi", users[0].Username)
}

func TestRecordUserUnknownGroup(t *testing.T) {
	s := newTestStore(t)

	id, err := s.RecordUser(context.Background(), "CORP", "ivan", 7)
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Equal(t, 0, countRows(t, s, tableUsers))
}

func TestIsUserValid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.IsUserValid(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := s.RecordUser(ctx, "CORP", "judy", 0)
	require.NoError(t, err)

	ok, err = s.IsUserValid(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsCredentialValidNullPassword(t *testing.T) {
	s := newTestStore(t)

	res, err := s.db.Exec(`INSERT INTO users (domain, username) VALUES ('CORP', 'nopass')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	ok, err := s.IsCredentialValid(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetCredentialsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, user := range []string{"svc_backup", "svc_sql", "administrator"} {
		_, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "plaintext", Domain: "CORP", Username: user, Password: "x"})
		require.NoError(t, err)
	}

	tests := []struct {
		filter   string
		credType string
		want     int
	}{
		{"", "", 3},
		{"svc", "", 2},
		{"SVC_SQL", "", 1},
		{"2", "", 1},
		{"", "plaintext", 3},
		{"", "hash", 0},
		{"svc", "hash", 0},
	}

	for _, tt := range tests {
		got, err := s.GetCredentials(ctx, tt.filter, tt.credType)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "filter=%q credtype=%q", tt.filter, tt.credType)
	}
}

func TestIsCredentialLocal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordComputer(ctx, domain.ComputerObservation{IP: "10.0.0.50", Hostname: "WS50", Domain: "CORP"})
	require.NoError(t, err)

	local, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "hash", Domain: "ws50", Username: "Administrator", Password: "h"})
	require.NoError(t, err)
	domainCred, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "hash", Domain: "corp.local", Username: "Administrator", Password: "h"})
	require.NoError(t, err)

	ok, err := s.IsCredentialLocal(ctx, local)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsCredentialLocal(ctx, domainCred)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsCredentialLocal(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, user := range []string{"a", "b", "c"} {
		id, err := s.RecordCredential(ctx, domain.CredentialObservation{CredType: "plaintext", Domain: "CORP", Username: user, Password: "x"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	host, err := s.RecordComputer(ctx, domain.ComputerObservation{IP: "10.0.0.60"})
	require.NoError(t, err)
	_, err = s.RecordAdminEdge(ctx, domain.AdminObservation{UserID: ids[0], Host: "10.0.0.60"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveCredentials(ctx, ids[:2]))

	users, err := s.GetUsers(ctx, "")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "c", users[0].Username)

	// No cascade: the admin edge of the removed user stays behind
	rels, err := s.GetAdminRelations(ctx, 0, host)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}
