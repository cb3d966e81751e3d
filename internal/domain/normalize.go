package domain

import (
	"strconv"
	"strings"
)

// DCFilter is the reserved filter term that selects domain controllers
const DCFilter = "dc"

// NormalizeDomain returns the NetBIOS-style short name of a domain: the first
// dot-separated label, upper-cased.
func NormalizeDomain(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	return strings.ToUpper(label)
}

// FilterTerm is the single free-form argument accepted by the Get* queries.
// It is first tried as a row id, then used as a substring filter.
type FilterTerm string

// ID returns the term as a row id if it parses as a positive integer
func (f FilterTerm) ID() (int64, bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsEmpty reports whether the term selects everything
func (f FilterTerm) IsEmpty() bool {
	return string(f) == ""
}

// Pattern returns the term wrapped for a LIKE substring match
func (f FilterTerm) Pattern() string {
	return "%" + string(f) + "%"
}
