package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"reconstore/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// nullToID parses an id stored in a loosely typed column. Older stores wrote
// '' for "no id", so anything that does not parse is 0.
func nullToID(ns sql.NullString) int64 {
	if !ns.Valid {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(ns.String), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// idToNull maps 0 to NULL
func idToNull(id int64) sql.NullInt64 {
	if id <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

// boolPtrToNull maps an unknown flag to NULL
func boolPtrToNull(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// The column lists below are the on-disk contract; do not reorder them.
//
// computers is the one table older stores ship with fewer columns, so its
// scanner maps by column name (computerRow.scanArgs takes the result's
// column list) and every computers SELECT uses "SELECT *". The other tables
// use fixed column lists:
//
// CRITICAL: Column order must match between:
// - the xxxColumns constant
// - scanArgs() return slice
// - All SELECT queries using xxxColumns

// ============================================================================
// Computer Row Scanner
// ============================================================================

// computerRow holds all columns from a computers query for scanning
type computerRow struct {
	ID         int64
	IP         sql.NullString
	Hostname   sql.NullString
	Domain     sql.NullString
	OS         sql.NullString
	DC         sql.NullInt64
	SMBv1      sql.NullInt64
	Signing    sql.NullInt64
	Spooler    sql.NullInt64
	Zerologon  sql.NullInt64
	PetitPotam sql.NullInt64
}

// scanArgs returns pointers matching cols by name. Unknown columns are
// scanned into a throwaway value.
func (r *computerRow) scanArgs(cols []string) []interface{} {
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		switch strings.ToLower(col) {
		case "id":
			args[i] = &r.ID
		case "ip":
			args[i] = &r.IP
		case "hostname":
			args[i] = &r.Hostname
		case "domain":
			args[i] = &r.Domain
		case "os":
			args[i] = &r.OS
		case "dc":
			args[i] = &r.DC
		case "smbv1":
			args[i] = &r.SMBv1
		case "signing":
			args[i] = &r.Signing
		case "spooler":
			args[i] = &r.Spooler
		case "zerologon":
			args[i] = &r.Zerologon
		case "petitpotam":
			args[i] = &r.PetitPotam
		default:
			args[i] = new(interface{})
		}
	}
	return args
}

// toDomain converts the scanned row to a domain.Computer
func (r *computerRow) toDomain() domain.Computer {
	return domain.Computer{
		ID:         r.ID,
		IP:         nullToString(r.IP),
		Hostname:   nullToString(r.Hostname),
		Domain:     nullToString(r.Domain),
		OS:         nullToString(r.OS),
		DC:         nullToBool(r.DC),
		SMBv1:      nullToBool(r.SMBv1),
		Signing:    nullToBool(r.Signing),
		Spooler:    nullToBool(r.Spooler),
		Zerologon:  nullToBool(r.Zerologon),
		PetitPotam: nullToBool(r.PetitPotam),
	}
}

func scanComputers(rows *sql.Rows) ([]domain.Computer, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read computer columns: %w", err)
	}

	var out []domain.Computer
	for rows.Next() {
		var r computerRow
		if err := rows.Scan(r.scanArgs(cols)...); err != nil {
			return nil, fmt.Errorf("failed to scan computer: %w", err)
		}
		out = append(out, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating computers: %w", err)
	}
	return out, nil
}

// ============================================================================
// Credential Row Scanner
// ============================================================================

// credentialRow holds all columns from a users query for scanning
type credentialRow struct {
	ID           int64
	Domain       sql.NullString
	Username     sql.NullString
	Password     sql.NullString
	CredType     sql.NullString
	PillagedFrom sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match credentialColumns order exactly:
// id, domain, username, password, credtype, pillaged_from_computerid
func (r *credentialRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,           // 1
		&r.Domain,       // 2
		&r.Username,     // 3
		&r.Password,     // 4
		&r.CredType,     // 5
		&r.PillagedFrom, // 6
	}
}

func (r *credentialRow) toDomain() domain.Credential {
	return domain.Credential{
		ID:           r.ID,
		Domain:       nullToString(r.Domain),
		Username:     nullToString(r.Username),
		Password:     nullToString(r.Password),
		CredType:     nullToString(r.CredType),
		PillagedFrom: nullToID(r.PillagedFrom),
	}
}

const credentialColumns = `id, domain, username, password, credtype, pillaged_from_computerid`

func scanCredentials(rows *sql.Rows) ([]domain.Credential, error) {
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		var r credentialRow
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}
	return out, nil
}

// ============================================================================
// Group Row Scanner
// ============================================================================

type groupRow struct {
	ID     int64
	Domain sql.NullString
	Name   sql.NullString
}

// MUST match groupColumns order: id, domain, name
func (r *groupRow) scanArgs() []interface{} {
	return []interface{}{&r.ID, &r.Domain, &r.Name}
}

func (r *groupRow) toDomain() domain.Group {
	return domain.Group{
		ID:     r.ID,
		Domain: nullToString(r.Domain),
		Name:   nullToString(r.Name),
	}
}

const groupColumns = `id, domain, name`

func scanGroups(rows *sql.Rows) ([]domain.Group, error) {
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var r groupRow
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	return out, nil
}

// ============================================================================
// Share Row Scanner
// ============================================================================

type shareRow struct {
	ID         int64
	ComputerID sql.NullString
	UserID     sql.NullString
	Name       sql.NullString
	Remark     sql.NullString
	Read       sql.NullInt64
	Write      sql.NullInt64
}

// MUST match shareColumns order:
// id, computerid, userid, name, remark, read, write
func (r *shareRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,
		&r.ComputerID,
		&r.UserID,
		&r.Name,
		&r.Remark,
		&r.Read,
		&r.Write,
	}
}

func (r *shareRow) toDomain() domain.Share {
	return domain.Share{
		ID:         r.ID,
		ComputerID: nullToID(r.ComputerID),
		UserID:     nullToID(r.UserID),
		Name:       nullToString(r.Name),
		Remark:     nullToString(r.Remark),
		Read:       nullToBool(r.Read),
		Write:      nullToBool(r.Write),
	}
}

const shareColumns = `id, computerid, userid, name, remark, read, write`

func scanShares(rows *sql.Rows) ([]domain.Share, error) {
	defer rows.Close()

	var out []domain.Share
	for rows.Next() {
		var r shareRow
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		out = append(out, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shares: %w", err)
	}
	return out, nil
}

// ============================================================================
// Edge Row Scanner
// ============================================================================

// edgeRow is shared by the three relation tables; all have the shape
// id, userid, <other id>
type edgeRow struct {
	ID      int64
	UserID  sql.NullString
	OtherID sql.NullString
}

func (r *edgeRow) scanArgs() []interface{} {
	return []interface{}{&r.ID, &r.UserID, &r.OtherID}
}

func scanEdges(rows *sql.Rows) ([]edgeRow, error) {
	defer rows.Close()

	var out []edgeRow
	for rows.Next() {
		var r edgeRow
		if err := rows.Scan(r.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}
	return out, nil
}

// scanIDs collects a single integer column
func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		out = append(out, nullToID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	return out, nil
}
