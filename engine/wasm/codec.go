package wasm

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/hokkaido/Nancy/engine"
)

var json = jsoniter.ConfigFastest

// wireRequest is the JSON form of a request crossing into the guest.
// The body is carried inline: the guest consumes a fully materialized
// request, never a stream.
type wireRequest struct {
	Method   string              `json:"method"`
	URI      string              `json:"uri"`
	Query    string              `json:"query,omitempty"`
	Protocol string              `json:"protocol"`
	Headers  map[string][]string `json:"headers,omitempty"`
	Body     []byte              `json:"body,omitempty"`
}

// wireResponse is the JSON form the guest returns.
type wireResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// encodeRequest drains the request body and marshals the wire form.
func encodeRequest(req *engine.Request) ([]byte, error) {
	w := wireRequest{
		Method:   req.Method,
		URI:      req.URI,
		Query:    req.Query,
		Protocol: req.Protocol,
		Headers:  req.Headers,
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		w.Body = body
	}
	return json.Marshal(w)
}

// decodeResponse unmarshals the guest's buffer into a Response whose
// content writer emits the returned body in one chunk.
func decodeResponse(data []byte) (*engine.Response, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	headers := w.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	body := w.Body
	return &engine.Response{
		StatusCode: w.Status,
		Headers:    headers,
		WriteContent: func(out io.Writer) error {
			if len(body) == 0 {
				return nil
			}
			_, err := out.Write(body)
			return err
		},
	}, nil
}
