package couchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/andymorris/couch-potato/pkg/core"
)

const retryDelay = time.Second

type changeRow struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Changes []struct {
		Rev string `json:"rev"`
	} `json:"changes"`
}

type changesResponse struct {
	Results []changeRow     `json:"results"`
	LastSeq json.RawMessage `json:"last_seq"`
}

// Watch follows the _changes feed with longpoll requests, starting from
// the current sequence. The channel closes when ctx ends.
func (s *Store) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, core.ErrInvalidArgument)
	}

	events := make(chan core.Event, 64)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(events)
		return s.follow(ctx, pattern, events)
	}, lifecycle.WithErrorHandler(s.reportError))
	return events, nil
}

func (s *Store) follow(ctx context.Context, pattern string, events chan<- core.Event) error {
	since := "now"
	for {
		var resp changesResponse
		query := url.Values{
			"feed":    {"longpoll"},
			"since":   {since},
			"timeout": {strconv.FormatInt(s.config.PollTimeout.Milliseconds(), 10)},
		}
		err := s.do(ctx, http.MethodGet, "_changes", query, nil, &resp)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.reportError(fmt.Errorf("changes feed: %w", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, row := range resp.Results {
			if ok, _ := doublestar.Match(pattern, row.ID); !ok {
				continue
			}
			e := core.Event{Type: eventType(row), ID: row.ID, Timestamp: time.Now().Unix()}
			select {
			case events <- e:
			case <-ctx.Done():
				return nil
			}
		}
		if seq := parseSeq(resp.LastSeq); seq != "" {
			since = seq
		}
	}
}

func eventType(row changeRow) core.EventType {
	if row.Deleted {
		return core.EventDelete
	}
	if len(row.Changes) > 0 && core.RevisionGeneration(row.Changes[0].Rev) == 1 {
		return core.EventCreate
	}
	return core.EventModify
}

// parseSeq accepts both the string sequences of CouchDB 2+ and the
// integer ones of 1.x.
func parseSeq(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func (s *Store) reportError(err error) {
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
		return
	}
	s.config.Logger.Error("couchdb watch error", "database", s.config.Database, "error", err)
}
