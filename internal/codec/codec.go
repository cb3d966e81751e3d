// Package codec reads and writes store snapshots in interchange formats
package codec

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"reconstore/internal/domain"
)

// Importer interface for importing snapshots from various formats
type Importer interface {
	Parse(r io.Reader) (*domain.Snapshot, error)
	Format() string
}

// Exporter interface for exporting snapshots to various formats
type Exporter interface {
	Export(snap *domain.Snapshot, w io.Writer) error
	Format() string
}

// Codec both imports and exports
type Codec interface {
	Importer
	Exporter
}

// All returns every available codec
func All() []Codec {
	return []Codec{NewJSONCodec(), NewYAMLCodec(), NewAnsibleCodec()}
}

// ForFormat returns the codec registered under format, compared
// case-insensitively
func ForFormat(format string) (Codec, error) {
	for _, c := range All() {
		if strings.EqualFold(c.Format(), format) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats(), ", "))
}

// Formats lists the registered format identifiers in sorted order
func Formats() []string {
	var names []string
	for _, c := range All() {
		names = append(names, c.Format())
	}
	sort.Strings(names)
	return names
}
