package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPermission is returned for share access filters other than r, w and rw
var ErrUnknownPermission = errors.New("unknown share permission")

// Permission is a share access class
type Permission string

const (
	PermissionRead      Permission = "r"
	PermissionWrite     Permission = "w"
	PermissionReadWrite Permission = "rw"
)

// ParsePermission accepts r, w or rw in any case
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(strings.ToLower(strings.TrimSpace(s))); p {
	case PermissionRead, PermissionWrite, PermissionReadWrite:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPermission, s)
}

// Predicate returns the SQL boolean test over the shares read/write columns
func (p Permission) Predicate() string {
	switch p {
	case PermissionRead:
		return "read=1"
	case PermissionWrite:
		return "write=1"
	case PermissionReadWrite:
		return "read=1 AND write=1"
	}
	return "0"
}

// Allows reports whether a share with the given flags satisfies p
func (p Permission) Allows(s Share) bool {
	switch p {
	case PermissionRead:
		return s.Read
	case PermissionWrite:
		return s.Write
	case PermissionReadWrite:
		return s.Read && s.Write
	}
	return false
}
