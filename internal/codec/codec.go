package codec

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"topomap/internal/domain"
)

// Importer interface for reading a topology snapshot from various formats
type Importer interface {
	Parse(r io.Reader) ([]domain.Node, error)
	Format() string
}

// Exporter interface for writing a topology snapshot to various formats
type Exporter interface {
	Export(nodes []domain.Node, w io.Writer) error
	Format() string
}

// Exporters returns every available exporter keyed by format
func Exporters() map[string]Exporter {
	out := make(map[string]Exporter)
	for _, e := range []Exporter{NewJSONCodec(), NewYAMLCodec(), NewAnsibleCodec()} {
		out[e.Format()] = e
	}
	return out
}

// ExporterFor returns the exporter for format
func ExporterFor(format string) (Exporter, error) {
	all := Exporters()
	if e, ok := all[strings.ToLower(format)]; ok {
		return e, nil
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown export format %q (supported: %s)", format, strings.Join(names, ", "))
}
