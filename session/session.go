// Package session renders templates through the rendering peer. A Session
// holds a schema and a template reference and turns them into one protocol
// exchange per Render call.
package session

import (
	"context"
	"fmt"

	"github.com/neutralts/nipc/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Exchanger performs one request/response exchange. *client.Transport
// implements it.
type Exchanger interface {
	Exchange(ctx context.Context, req protocol.Request) (*protocol.Response, error)
}

// Option configures a Session.
type Option func(*Session)

// WithOperation overrides the requested operation.
func WithOperation(op protocol.Operation) Option {
	return func(s *Session) {
		s.op = op
	}
}

// WithSource treats the template argument of New as inline source instead
// of a path.
func WithSource() Option {
	return func(s *Session) {
		s.tplFormat = protocol.FormatText
	}
}

// WithLogger sets the logger for render diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session is a template render request. It is not safe for concurrent use;
// concurrent renders should each use their own Session.
type Session struct {
	exchanger Exchanger
	op        protocol.Operation
	schema    Schema
	template  string
	tplFormat protocol.Format
	result    *Result
	logger    zerolog.Logger
}

// New creates a Session that renders template (a path unless WithSource is
// given) against schema. Schema may be a map, a JSON document as string or
// []byte, or any value that marshals to a JSON object.
func New(exchanger Exchanger, template string, schema any, opts ...Option) (*Session, error) {
	normalized, err := toSchema(schema)
	if err != nil {
		return nil, err
	}

	s := &Session{
		exchanger: exchanger,
		op:        protocol.OpParseTemplate,
		schema:    normalized,
		template:  template,
		tplFormat: protocol.FormatPath,
		logger:    log.With().Str("com", "ipc-session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetPath sends the template by file path.
func (s *Session) SetPath(path string) {
	s.tplFormat = protocol.FormatPath
	s.template = path
}

// SetSource sends the template as inline source text.
func (s *Session) SetSource(source string) {
	s.tplFormat = protocol.FormatText
	s.template = source
}

// Template returns the template reference and how it is sent.
func (s *Session) Template() (string, protocol.Format) {
	return s.template, s.tplFormat
}

// MergeSchema deep merges fragment into the schema; see DeepMerge. The
// fragment is never modified.
func (s *Session) MergeSchema(fragment any) error {
	overlay, err := toSchema(fragment)
	if err != nil {
		return err
	}
	s.schema = DeepMerge(s.schema, overlay)
	return nil
}

// Schema returns a copy of the current schema.
func (s *Session) Schema() Schema {
	return DeepMerge(s.schema, nil)
}

// Render performs one exchange and returns the rendered content.
//
// Transport failures are returned as they come from the Exchanger. A response
// with a failure status or an unusable payload yields a *ProtocolError. A
// successful exchange whose metadata reports has_error is not an error: check
// HasError.
func (s *Session) Render(ctx context.Context) (string, error) {
	schema, err := json.Marshal(s.schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}

	// A failed render leaves no result behind, so the accessors never
	// report a previous outcome.
	s.result = nil

	resp, err := s.exchanger.Exchange(ctx, protocol.Request{
		Op:       s.op,
		Format1:  protocol.FormatJSON,
		Content1: string(schema),
		Format2:  s.tplFormat,
		Content2: s.template,
	})
	if err != nil {
		return "", err
	}

	result, err := s.decode(resp)
	if err != nil {
		return "", err
	}
	s.result = result

	logger := s.logger.With().
		Stringer("status", result.Status).
		Int("status_code", result.Metadata.StatusCode).
		Str("template", s.template).
		Logger()

	if result.Status != protocol.StatusOK {
		logger.Debug().Str("status_text", result.Metadata.StatusText).Msg("render rejected")
		return result.Text(), &ProtocolError{Status: result.Status, Reason: "request not accepted"}
	}
	if result.Metadata.HasError {
		logger.Warn().Msg("template reported parse errors")
	} else {
		logger.Debug().Int("bytes", len(result.Content)).Msg("rendered")
	}
	return result.Text(), nil
}

func (s *Session) decode(resp *protocol.Response) (*Result, error) {
	if err := resp.Record().Validate(); err != nil {
		return nil, &ProtocolError{Status: resp.Status, Reason: "invalid payload", Err: err}
	}
	if resp.Format1 != protocol.FormatJSON {
		return nil, &ProtocolError{Status: resp.Status, Reason: fmt.Sprintf("metadata has format %s", resp.Format1)}
	}

	result := &Result{
		Status:        resp.Status,
		Content:       resp.Content2,
		ContentFormat: resp.Format2,
	}
	meta, err := parseMetadata(resp.Content1)
	if err != nil {
		if resp.Status == protocol.StatusOK {
			return nil, &ProtocolError{Status: resp.Status, Reason: "invalid metadata", Err: err}
		}
		// A failure status already explains the outcome; keep what can be kept.
		return result, nil
	}
	result.Metadata = meta
	return result, nil
}

// Result returns the outcome of the last Render, or nil before the first one.
func (s *Session) Result() *Result {
	return s.result
}

// HasError reports whether the last render failed at the transport, protocol
// or template level. It is true before the first render.
func (s *Session) HasError() bool {
	if s.result == nil {
		return true
	}
	return s.result.HasError()
}

// StatusCode returns the HTTP style status of the last render.
func (s *Session) StatusCode() int {
	if s.result == nil {
		return 0
	}
	return s.result.Metadata.StatusCode
}

// StatusText returns the status text of the last render.
func (s *Session) StatusText() string {
	if s.result == nil {
		return ""
	}
	return s.result.Metadata.StatusText
}

// StatusParam returns the status parameter of the last render, such as a
// redirect target.
func (s *Session) StatusParam() string {
	if s.result == nil {
		return ""
	}
	return s.result.Metadata.StatusParam
}

// Content returns the rendered content of the last render.
func (s *Session) Content() string {
	if s.result == nil {
		return ""
	}
	return s.result.Text()
}
