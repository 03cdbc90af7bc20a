// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// DefaultCommentFields are the CommentInfo fields copied into each
// comment record when [CommentOptions.Fields] is nil.
// See https://gerrit-review.googlesource.com/Documentation/rest-api-changes.html#comment-info.
var DefaultCommentFields = []string{
	"id",
	"author",
	"change_message_id",
	"updated",
	"unresolved",
	"patch_set",
	"line",
	"message",
}

// Fields appended to every comment record after the requested fields.
const (
	ChangeIDField = "change_id" // identifier of the change the comment is on
	FileField     = "file"      // path of the file the comment is attached to
)

// ErrNotFound is the error recorded for a change whose comments
// Gerrit could not find under either form of its identifier.
var ErrNotFound = errors.New("change not found")

// CommentOptions are optional settings for [Client.Comments].
type CommentOptions struct {
	// Fields to keep in each record; nil means DefaultCommentFields.
	Fields []string

	// Community is used for change identifiers whose project
	// has no "<community>%2F" prefix.
	Community string
}

// A CommentCollector fetches the inline comments of a list of changes.
type CommentCollector struct {
	c         *Client
	changes   []*Record
	fields    []string
	community string
}

// Comments returns a collector for the comments of changes,
// which are usually the result of [Query.Run].
// Each change record must hold the "id" field; the "_number" and
// "total_comment_count" fields are used when present.
func (c *Client) Comments(changes []*Record, opts *CommentOptions) *CommentCollector {
	if opts == nil {
		opts = new(CommentOptions)
	}
	fields := opts.Fields
	if fields == nil {
		fields = DefaultCommentFields
	}
	return &CommentCollector{
		c:         c,
		changes:   slices.Clone(changes),
		fields:    slices.Clone(fields),
		community: opts.Community,
	}
}

// A ChangeResult is the outcome of collecting the comments of one change.
type ChangeResult struct {
	ID       string // the change identifier
	Expected int    // total_comment_count reported by Gerrit
	Got      int    // number of comment records produced
	Fallback bool   // comments were fetched by change number
	Err      error  // reason the change was skipped, or nil
}

// Skipped reports whether the change's comments could not be collected.
func (r *ChangeResult) Skipped() bool {
	return r.Err != nil
}

// Mismatch reports whether the comments were collected but their
// number differs from the count Gerrit reported for the change.
// A mismatch usually means lost data, such as comments on files
// that were deleted from later patch sets.
func (r *ChangeResult) Mismatch() bool {
	return r.Err == nil && r.Expected != r.Got
}

// A Report describes a run of a [CommentCollector],
// with one result per change, in order.
type Report struct {
	Results []ChangeResult
}

// Skipped returns the results of the skipped changes.
func (r *Report) Skipped() []ChangeResult {
	return r.filter((*ChangeResult).Skipped)
}

// Mismatches returns the results of the changes with unexpected comment counts.
func (r *Report) Mismatches() []ChangeResult {
	return r.filter((*ChangeResult).Mismatch)
}

func (r *Report) filter(keep func(*ChangeResult) bool) []ChangeResult {
	var list []ChangeResult
	for i := range r.Results {
		if keep(&r.Results[i]) {
			list = append(list, r.Results[i])
		}
	}
	return list
}

// Run fetches the comments of each change in turn and returns
// all comment records, ordered by change, then file, then comment,
// as Gerrit returned them.
//
// A failure affecting one change is logged and recorded in the
// report, and Run moves on to the next change. If ctx is canceled,
// Run stops and returns what it has collected so far.
func (cc *CommentCollector) Run(ctx context.Context) ([]*Record, *Report) {
	lg := cc.c.slog
	var all []*Record
	rep := &Report{Results: make([]ChangeResult, 0, len(cc.changes))}
	for i, ch := range cc.changes {
		if err := ctx.Err(); err != nil {
			lg.Warn("gerrit comment collection interrupted", "done", i, "remaining", len(cc.changes)-i, "err", err)
			break
		}
		recs, res := cc.collect(ctx, ch)
		switch {
		case res.Skipped():
			cc.c.metrics.skipped.Add(ctx, 1)
			if !errors.Is(res.Err, ErrNotFound) {
				lg.Error("gerrit comments request failed", "change", res.ID, "err", res.Err)
			}
		case res.Mismatch():
			cc.c.metrics.mismatches.Add(ctx, 1)
			lg.Warn("gerrit comment count mismatch", "change", res.ID, "expected", res.Expected, "actual", res.Got)
		}
		rep.Results = append(rep.Results, res)
		all = append(all, recs...)
	}
	lg.Info("gerrit comments done", "changes", len(rep.Results), "comments", len(all),
		"skipped", len(rep.Skipped()), "mismatches", len(rep.Mismatches()))
	return all, rep
}

// collect collects the comments of a single change.
// A panic while handling the change is reported as the change's error.
func (cc *CommentCollector) collect(ctx context.Context, ch *Record) (recs []*Record, res ChangeResult) {
	res.ID = ch.String("id")
	res.Expected, _ = ch.Int("total_comment_count")
	defer func() {
		if e := recover(); e != nil {
			recs = nil
			res.Got = 0
			res.Err = fmt.Errorf("panic: %v", e)
		}
	}()

	body, fallback, err := cc.fetch(ctx, ch, res.ID)
	res.Fallback = fallback
	if err != nil {
		res.Err = err
		return nil, res
	}
	recs, err = cc.records(body, res.ID)
	if err != nil {
		res.Err = err
		return nil, res
	}
	res.Got = len(recs)
	return recs, res
}

// fetch returns the comments of the change with identifier id,
// with the anti-hijacking prefix removed.
// If Gerrit does not know the identifier, fetch retries once using
// the change number, reporting whether it did so.
func (cc *CommentCollector) fetch(ctx context.Context, ch *Record, id string) (_ []byte, fallback bool, _ error) {
	cid, err := ParseChangeID(id)
	if err != nil {
		return nil, false, err
	}
	name := cid.Community()
	if name == "" {
		name = cc.community
	}
	if name == "" {
		return nil, false, fmt.Errorf("%w: no community in %q", ErrMalformedID, id)
	}
	base, err := cc.c.lookup(name)
	if err != nil {
		return nil, false, err
	}

	addr := base + "/changes/" + cid.String() + "/comments"
	code, body, err := cc.c.get(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	if code == http.StatusNotFound {
		num, ok := ch.Int("_number")
		if !ok {
			cc.c.slog.Warn("request 404 for change_id: " + id)
			return nil, false, fmt.Errorf("%w: %s has no change number", ErrNotFound, id)
		}
		fallback = true
		cc.c.metrics.fallbacks.Add(ctx, 1)
		addr = base + "/changes/" + cid.Numbered(num) + "/comments"
		code, body, err = cc.c.get(ctx, addr)
		if err != nil {
			return nil, fallback, err
		}
		if code == http.StatusNotFound {
			cc.c.slog.Warn("request 404 for change_id: " + id)
			return nil, fallback, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	if code != http.StatusOK {
		return nil, fallback, &StatusError{URL: addr, Status: fmt.Sprintf("%d %s", code, http.StatusText(code)), Code: code}
	}
	data, ok := stripPrefix(body)
	if !ok {
		return nil, fallback, fmt.Errorf("GET %s: body too short (%d bytes)", addr, len(body))
	}
	return data, fallback, nil
}

// records decodes a Gerrit map from file path to CommentInfo list
// and returns one record per comment. Files are visited in the
// order they appear in data.
func (cc *CommentCollector) records(data []byte, id string) ([]*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var recs []*Record
	err := decodeObject(dec, func(file string) error {
		var comments []map[string]any
		if err := dec.Decode(&comments); err != nil {
			return fmt.Errorf("file %q: %w", file, err)
		}
		for _, cm := range comments {
			recs = append(recs, newRecord(cm, cc.fields,
				field{ChangeIDField, id},
				field{FileField, file}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding comments of %s: %w", id, err)
	}
	return recs, nil
}
