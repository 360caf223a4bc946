package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TranscriptExport is the top-level JSON export structure.
type TranscriptExport struct {
	ExportedAt string           `json:"exportedAt"`
	Exchanges  []ExchangeExport `json:"exchanges"`
}

// ExchangeExport describes one answered query.
type ExchangeExport struct {
	ID         string         `json:"id"`
	Query      string         `json:"query"`
	Response   string         `json:"response"`
	Fallback   bool           `json:"fallback,omitempty"`
	Server     string         `json:"server,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Note       string         `json:"note,omitempty"`
	DurationMS int64          `json:"durationMs"`
	CreatedAt  string         `json:"createdAt"`
}

// BuildExport converts entries for JSON output.
func BuildExport(entries []Entry) *TranscriptExport {
	out := &TranscriptExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Exchanges:  make([]ExchangeExport, 0, len(entries)),
	}
	for _, e := range entries {
		out.Exchanges = append(out.Exchanges, ExchangeExport{
			ID:         e.ID,
			Query:      e.Query,
			Response:   e.Response,
			Fallback:   e.Fallback,
			Server:     e.Server,
			Tool:       e.Tool,
			Arguments:  e.Arguments,
			Note:       e.Note,
			DurationMS: e.Duration.Milliseconds(),
			CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// WriteJSON writes entries as an indented TranscriptExport.
func WriteJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildExport(entries)); err != nil {
		return fmt.Errorf("transcript: encoding export: %w", err)
	}
	return nil
}
