package session

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/neutralts/nipc/protocol"
)

// Metadata is the structured status the rendering peer returns with every render.
type Metadata struct {
	HasError    bool
	StatusCode  int
	StatusText  string
	StatusParam string // Redirect target or error detail

	// Fields holds the complete decoded metadata object.
	Fields map[string]any
}

// Result is the decoded outcome of one render.
type Result struct {
	Status        protocol.Status
	Metadata      Metadata
	Content       []byte
	ContentFormat protocol.Format
}

// HasError reports whether the peer rejected the request or reported a render
// error such as a template parse failure.
func (r *Result) HasError() bool {
	return r.Status != protocol.StatusOK || r.Metadata.HasError
}

// Redirect returns the redirect target when the template asked for one.
func (r *Result) Redirect() (string, bool) {
	switch r.Metadata.StatusCode {
	case 301, 302, 307, 308:
		return r.Metadata.StatusParam, true
	}
	return "", false
}

// IsHTTPError reports whether the template produced an HTTP error status.
func (r *Result) IsHTTPError() bool {
	return r.Metadata.StatusCode >= 400
}

// Text returns the rendered content as a string.
func (r *Result) Text() string {
	return string(r.Content)
}

func parseMetadata(data []byte) (Metadata, error) {
	var fields map[string]any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if fields == nil {
		return Metadata{}, fmt.Errorf("decode metadata: not an object")
	}

	meta := Metadata{
		HasError:    truthy(fields["has_error"]),
		StatusText:  stringValue(fields["status_text"]),
		StatusParam: stringValue(fields["status_param"]),
		Fields:      fields,
	}
	meta.StatusCode = statusCode(fields["status_code"])
	return meta, nil
}

// statusCode reads status_code on a best-effort basis: numbers are truncated,
// numeric strings such as "404" are parsed and anything else yields 0. The raw
// value stays available in Fields.
func statusCode(v any) int {
	switch t := v.(type) {
	case interface {
		Int64() (int64, error)
		Float64() (float64, error)
	}: // json.Number
		if n, err := t.Int64(); err == nil {
			return truncate(float64(n))
		}
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return truncate(f)
	case float64:
		return truncate(t)
	case string:
		s := strings.TrimSpace(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return truncate(f)
		}
	}
	return 0
}

func truncate(f float64) int {
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case interface{ Float64() (float64, error) }: // json.Number
		f, err := t.Float64()
		return err != nil || f != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}
