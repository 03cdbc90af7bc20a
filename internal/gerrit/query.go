// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// A Property describes a search operator that a [Query] accepts,
// such as "status" in "status:merged".
// See https://gerrit-review.googlesource.com/Documentation/user-search.html.
type Property struct {
	Name     string
	Required bool              // the caller must supply a value
	Valid    func(string) bool // reports whether a value is acceptable; nil accepts all
}

// DefaultProperties are the search operators accepted by [Client.Query]
// when [QueryOptions.Properties] is nil.
// Their order determines the order of terms in the search expression.
var DefaultProperties = []Property{
	{Name: "after", Valid: ValidTime},
	{Name: "before", Valid: ValidTime},
	{Name: "status", Valid: ValidStatus},
}

// DefaultChangeFields are the ChangeInfo fields copied into each
// change record when [QueryOptions.Fields] is nil.
// See https://gerrit-review.googlesource.com/Documentation/rest-api-changes.html#change-info.
var DefaultChangeFields = []string{
	"id",
	"project",
	"_number",
	"branch",
	"change_id",
	"created",
	"updated",
	"submitted",
	"topic",
	"insertions",
	"deletions",
	"hashtags",
	"owner",
	"status",
	"subject",
	"requirements",
	"total_comment_count",
}

var timePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(\d{2}:\d{2}:\d{2})?$`)

// ValidTime reports whether s is a date "2006-01-02",
// optionally followed directly by a time "15:04:05".
func ValidTime(s string) bool {
	return timePattern.MatchString(s)
}

var statuses = []string{"abandoned", "closed", "merged", "open", "reviewed"}

// ValidStatus reports whether s is a change status Gerrit can search for.
func ValidStatus(s string) bool {
	return slices.Contains(statuses, s)
}

// QueryOptions are optional settings for [Client.Query].
type QueryOptions struct {
	Fields     []string   // fields to keep in each record; nil means DefaultChangeFields
	Properties []Property // accepted search operators; nil means DefaultProperties
}

// A Query is a validated search for the changes of one project.
// It is safe to call Run more than once; each call repeats the search.
type Query struct {
	c         *Client
	community string
	project   string
	baseURL   string
	terms     []string // "name:value", in declared property order
	fields    []string
}

// Query returns a search for the changes of project in community,
// restricted by the search operators in params.
//
// Query returns an error wrapping [ErrConfig] if the community is not
// known to c, the project is blank, a required property has no value,
// or a value is rejected by its property.
// Parameters that match no declared property are dropped with a warning.
func (c *Client) Query(community, project string, params map[string]string, opts *QueryOptions) (*Query, error) {
	if opts == nil {
		opts = new(QueryOptions)
	}
	props := opts.Properties
	if props == nil {
		props = DefaultProperties
	}
	fields := opts.Fields
	if fields == nil {
		fields = DefaultChangeFields
	}

	base, err := c.lookup(community)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("%w: empty project name", ErrConfig)
	}

	q := &Query{
		c:         c,
		community: community,
		project:   project,
		baseURL:   base,
		fields:    slices.Clone(fields),
	}
	declared := make(map[string]bool)
	for _, p := range props {
		declared[p.Name] = true
		v, ok := params[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("%w: parameter %q is required but missing", ErrConfig, p.Name)
			}
			continue
		}
		if p.Valid != nil && !p.Valid(v) {
			return nil, fmt.Errorf("%w: %q is not a valid value for parameter %q", ErrConfig, v, p.Name)
		}
		q.terms = append(q.terms, p.Name+":"+v)
	}

	var ignored []string
	for _, name := range slices.Sorted(maps.Keys(params)) {
		if !declared[name] {
			ignored = append(ignored, name)
		}
	}
	if len(ignored) > 0 {
		c.slog.Warn("gerrit query ignoring undeclared parameters", "params", ignored)
	}
	return q, nil
}

// Community returns the community the query searches.
func (q *Query) Community() string { return q.community }

// Project returns the project the query searches.
func (q *Query) Project() string { return q.project }

// Expr returns the Gerrit search expression, such as
// "project:openstack/nova status:merged".
func (q *Query) Expr() string {
	return strings.Join(append([]string{"project:" + q.community + "/" + q.project}, q.terms...), " ")
}

// String returns the unescaped form of the search URL, for display.
func (q *Query) String() string {
	return q.baseURL + "/changes/?q=" + q.Expr() + "&no-limit"
}

// URL returns the search URL. The no-limit option asks Gerrit for
// every matching change rather than its default page size.
func (q *Query) URL() string {
	return q.baseURL + "/changes/?q=" + url.QueryEscape(q.Expr()) + "&no-limit"
}

// Run runs the search and returns one record per change,
// in the order Gerrit returned them.
//
// A response with an error status, or with no data after the
// anti-hijacking prefix, yields no records and no error;
// Run logs the two cases differently.
// Run returns an error if the request fails or the body is not a
// JSON array of objects.
func (q *Query) Run(ctx context.Context) ([]*Record, error) {
	code, body, err := q.c.get(ctx, q.URL())
	if err != nil {
		return nil, fmt.Errorf("gerrit query %q: %w", q.Expr(), err)
	}
	if code != http.StatusOK {
		q.c.slog.Warn("gerrit query failed", "query", q.Expr(), "status", code)
		return nil, nil
	}
	data, ok := stripPrefix(body)
	if !ok || len(bytes.TrimSpace(data)) == 0 {
		q.c.slog.Warn("gerrit query returned no data", "query", q.Expr(), "len", len(body))
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("gerrit query %q: decoding changes: %w", q.Expr(), err)
	}
	recs := make([]*Record, 0, len(items))
	for _, item := range items {
		recs = append(recs, newRecord(item, q.fields))
	}
	q.c.slog.Info("gerrit query done", "query", q.Expr(), "changes", len(recs))
	return recs, nil
}
