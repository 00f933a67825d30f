// Package display renders views and ingestion results for the
// terminal. It supports table, JSON and simple text output.
package display

import (
	"io"

	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
)

// Format represents an output format.
type Format string

const (
	// FormatTable renders bordered tables.
	FormatTable Format = "table"

	// FormatJSON renders indented JSON.
	FormatJSON Format = "json"

	// FormatSimple renders plain aligned text without borders.
	FormatSimple Format = "simple"
)

// Formatter renders facade output.
type Formatter interface {
	// FormatView renders one tab view.
	FormatView(w io.Writer, view *tabs.View) error

	// FormatIngestResult renders an ingestion pass summary.
	FormatIngestResult(w io.Writer, result *ingest.Result) error

	// FormatGaps renders a gap analysis.
	FormatGaps(w io.Writer, analysis gaps.Analysis) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format. Default: FormatTable.
	Format Format

	// Compact reduces whitespace and drops section headers.
	Compact bool
}
