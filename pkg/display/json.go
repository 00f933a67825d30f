package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/usage-ledger/pkg/gaps"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/tabs"
)

// jsonFormatter renders everything as indented JSON.
type jsonFormatter struct {
	config Config
}

func (f *jsonFormatter) FormatView(w io.Writer, view *tabs.View) error {
	return f.encode(w, view)
}

func (f *jsonFormatter) FormatIngestResult(w io.Writer, result *ingest.Result) error {
	return f.encode(w, result)
}

func (f *jsonFormatter) FormatGaps(w io.Writer, analysis gaps.Analysis) error {
	return f.encode(w, analysis)
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if !f.config.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
