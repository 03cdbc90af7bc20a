// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gerrit collects changes and inline review comments from
// Gerrit code-review servers and flattens them into [Record] values.
//
// A [Query] lists the changes of a project that match a search;
// a [CommentCollector] fetches the comments of those changes and
// checks the number it got against the count Gerrit reports.
// Both work strictly sequentially, one HTTP request at a time.
package gerrit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/reviewspy/internal/community"
)

// ErrConfig is returned when an engine is constructed with an
// unsupported community, an empty project, or a missing or invalid
// query parameter.
var ErrConfig = errors.New("invalid configuration")

// A StatusError reports an HTTP response with an unexpected status.
type StatusError struct {
	URL    string
	Status string // "404 Not Found"
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// prefixLen is the length of the ")]}'" prefix that Gerrit writes
// before every JSON response to defeat cross-site script inclusion.
const prefixLen = 4

// Communities looks up Gerrit communities by name.
// [*community.Registry] implements Communities.
type Communities interface {
	Lookup(name string) (*community.Community, bool)
}

// A Client issues requests to the Gerrit servers of a set of communities.
type Client struct {
	slog        *slog.Logger
	communities Communities
	http        *http.Client
	metrics     *metrics
}

// New returns a new client for the given communities.
// The client uses the given logger and HTTP client;
// if hc is nil, it uses [http.DefaultClient].
func New(lg *slog.Logger, communities Communities, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		slog:        lg,
		communities: communities,
		http:        hc,
		metrics:     newMetrics(lg),
	}
}

// lookup returns the base URL of the named community.
func (c *Client) lookup(name string) (string, error) {
	cm, ok := c.communities.Lookup(name)
	if !ok || cm == nil {
		return "", fmt.Errorf("%w: community %q is not supported", ErrConfig, name)
	}
	return cm.URL, nil
}

// get fetches addr and returns the response status code and body.
// It returns an error only if the request could not be made
// or the body could not be read.
func (c *Client) get(ctx context.Context, addr string) (int, []byte, error) {
	c.slog.Debug("gerrit GET", "addr", addr)
	c.metrics.requests.Add(ctx, 1)

	req, err := http.NewRequestWithContext(ctx, "GET", addr, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading body of %s: %v", addr, err)
	}
	return resp.StatusCode, data, nil
}

// stripPrefix removes the anti-hijacking prefix from a Gerrit
// response body. It reports false if body is too short to hold one.
func stripPrefix(body []byte) ([]byte, bool) {
	if len(body) < prefixLen {
		return nil, false
	}
	return body[prefixLen:], true
}
