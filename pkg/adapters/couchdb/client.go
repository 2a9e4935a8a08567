package couchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/andymorris/couch-potato/pkg/core"
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Kind   string // CouchDB "error" field, e.g. "conflict"
	Reason string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("couchdb: %s %s: %d", e.Method, e.Path, e.Code)
	if e.Kind != "" {
		msg += " " + e.Kind
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap maps status codes to the core sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusConflict:
		return core.ErrConflict
	case http.StatusBadRequest:
		return core.ErrInvalidArgument
	}
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// docPath escapes id for use as a path segment. Design document ids keep
// their slash.
func docPath(id string) string {
	if name, ok := strings.CutPrefix(id, "_design/"); ok {
		return "_design/" + url.PathEscape(name)
	}
	return url.PathEscape(id)
}

// do sends one request relative to the database URL. path must already be
// escaped. body is JSON-encoded unless nil; out receives the decoded 2xx
// response unless nil.
func (s *Store) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := s.base
	if path != "" {
		target += "/" + path
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("couchdb: invalid request path %q: %w", path, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("couchdb: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("couchdb: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.config.Username != "" {
		req.SetBasicAuth(s.config.Username, s.config.Password)
	}

	s.config.Logger.Debug("couchdb request", "method", method, "path", u.Path)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("couchdb: %s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: method, Path: u.Path, Code: resp.StatusCode}
		var eb errorBody
		if method != http.MethodHead && json.NewDecoder(resp.Body).Decode(&eb) == nil {
			se.Kind, se.Reason = eb.Error, eb.Reason
		}
		return se
	}

	if out == nil || method == http.MethodHead {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("couchdb: failed to decode %s %s response: %w", method, u.Path, err)
	}
	return nil
}

// statusCode returns the HTTP status of err, or 0 if err is not a StatusError.
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
