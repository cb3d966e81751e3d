package sqlite

import (
	"context"
	"fmt"
)

// Table names
const (
	tableComputers         = "computers"
	tableUsers             = "users"
	tableGroups            = "groups"
	tableShares            = "shares"
	tableAdminRelations    = "admin_relations"
	tableGroupRelations    = "group_relations"
	tableLoggedInRelations = "loggedin_relations"
)

// schema is the on-disk contract read by external tooling. Column names,
// types and order must not change. Statements run one at a time so a
// duplicate table is reported on the first CREATE.
var schema = []string{
	`CREATE TABLE "computers" (
		"id" integer PRIMARY KEY,
		"ip" text,
		"hostname" text,
		"domain" text,
		"os" text,
		"dc" boolean,
		"smbv1" boolean,
		"signing" boolean,
		"spooler" boolean,
		"zerologon" boolean,
		"petitpotam" boolean
	)`,

	// credtype: hash, plaintext
	`CREATE TABLE "users" (
		"id" integer PRIMARY KEY,
		"domain" text,
		"username" text,
		"password" text,
		"credtype" text,
		"pillaged_from_computerid" integer,
		FOREIGN KEY(pillaged_from_computerid) REFERENCES computers(id)
	)`,

	`CREATE TABLE "groups" (
		"id" integer PRIMARY KEY,
		"domain" text,
		"name" text
	)`,

	`CREATE TABLE "admin_relations" (
		"id" integer PRIMARY KEY,
		"userid" integer,
		"computerid" integer,
		FOREIGN KEY(userid) REFERENCES users(id),
		FOREIGN KEY(computerid) REFERENCES computers(id)
	)`,

	`CREATE TABLE "loggedin_relations" (
		"id" integer PRIMARY KEY,
		"userid" integer,
		"computerid" integer,
		FOREIGN KEY(userid) REFERENCES users(id),
		FOREIGN KEY(computerid) REFERENCES computers(id)
	)`,

	`CREATE TABLE "group_relations" (
		"id" integer PRIMARY KEY,
		"userid" integer,
		"groupid" integer,
		FOREIGN KEY(userid) REFERENCES users(id),
		FOREIGN KEY(groupid) REFERENCES groups(id)
	)`,

	`CREATE TABLE "shares" (
		"id" integer PRIMARY KEY,
		"computerid" text,
		"userid" integer,
		"name" text,
		"remark" text,
		"read" boolean,
		"write" boolean,
		FOREIGN KEY(userid) REFERENCES users(id),
		UNIQUE(computerid, userid, name)
	)`,
}

// InitSchema creates all tables. It must run once per new store; on an
// initialized store it returns ErrDuplicateSchema and changes nothing.
func (s *Store) InitSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("init schema", fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if isDuplicateTable(err) {
				return fmt.Errorf("%w: %v", ErrDuplicateSchema, err)
			}
			return storeErr("init schema", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("init schema", fmt.Errorf("commit transaction: %w", err))
	}

	s.log.Debug().Int("tables", len(schema)).Msg("schema initialized")
	return nil
}

// HasSchema reports whether the computers table exists
func (s *Store) HasSchema(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, tableComputers,
	).Scan(&n)
	if err != nil {
		return false, storeErr("check schema", err)
	}
	return n > 0, nil
}
