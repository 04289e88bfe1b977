package server

import (
	"bytes"
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/neutralts/nipc/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata is the status object sent as payload 1 of every response.
type Metadata struct {
	HasError    bool   `json:"has_error"`
	StatusCode  int    `json:"status_code"`
	StatusText  string `json:"status_text"`
	StatusParam string `json:"status_param"`
}

// Respond builds a response with the given status, metadata and text content.
func Respond(status protocol.Status, meta Metadata, content string) protocol.Response {
	// Metadata only holds plain fields, marshaling cannot fail.
	data, _ := json.Marshal(meta)
	return protocol.Response{
		Status:   status,
		Format1:  protocol.FormatJSON,
		Content1: data,
		Format2:  protocol.FormatText,
		Content2: []byte(content),
	}
}

// Failure builds a failure response carrying an HTTP style status.
func Failure(code int, text, param string) protocol.Response {
	return Respond(protocol.StatusKO, Metadata{
		HasError:    true,
		StatusCode:  code,
		StatusText:  text,
		StatusParam: param,
	}, "")
}

// StubHandler answers parse-template requests without rendering: the content
// is the template reference followed by the indented schema. A schema that is
// not a JSON object is reported through has_error, like a template error.
func StubHandler() Handler {
	return HandlerFunc(func(ctx context.Context, req protocol.Request) protocol.Response {
		if req.Op != protocol.OpParseTemplate {
			return Failure(400, "Bad Request", "unsupported operation "+req.Op.String())
		}
		if req.Format1 != protocol.FormatJSON {
			return Failure(400, "Bad Request", "schema must be sent as json")
		}

		var schema map[string]any
		if err := json.Unmarshal([]byte(req.Content1), &schema); err != nil {
			return Respond(protocol.StatusOK, Metadata{
				HasError:    true,
				StatusCode:  500,
				StatusText:  "Internal Server Error",
				StatusParam: err.Error(),
			}, "")
		}

		var out bytes.Buffer
		fmt.Fprintf(&out, "%s: %s\n", req.Format2, req.Content2)
		pretty, _ := json.MarshalIndent(schema, "", "  ")
		out.Write(pretty)

		return Respond(protocol.StatusOK, Metadata{
			StatusCode: 200,
			StatusText: "OK",
		}, out.String())
	})
}
