// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archive keeps collected change and comment records
// in a Pebble database on disk, so that a collection can be
// re-exported or inspected later.
//
// The following key schemas are stored in the database:
//
//	["reviewspy.Change", Community, Project, Seq] => Record JSON
//	["reviewspy.Comment", Community, Project, Seq] => Record JSON
//
// Seq is the position of the record in the collected list.
// Storing a list replaces any list stored earlier for the same
// community and project.
package archive

import (
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/cockroachdb/pebble"
	"golang.org/x/reviewspy/internal/gerrit"
	"rsc.io/ordered"
)

const (
	changeKind  = "reviewspy.Change"
	commentKind = "reviewspy.Comment"
)

// o is short for ordered.Encode.
func o(list ...any) []byte { return ordered.Encode(list...) }

// A DB is an archive of records.
type DB struct {
	slog *slog.Logger
	p    *pebble.DB
}

// Open opens the archive in dir, creating it if needed.
func Open(lg *slog.Logger, dir string) (*DB, error) {
	p, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", dir, err)
	}
	return &DB{slog: lg, p: p}, nil
}

// Close flushes and closes the archive.
func (db *DB) Close() error {
	if err := db.p.Flush(); err != nil {
		db.p.Close()
		return err
	}
	return db.p.Close()
}

// PutChanges stores the change records of a project.
func (db *DB) PutChanges(community, project string, recs []*gerrit.Record) error {
	return db.put(changeKind, community, project, recs)
}

// PutComments stores the comment records of a project.
func (db *DB) PutComments(community, project string, recs []*gerrit.Record) error {
	return db.put(commentKind, community, project, recs)
}

// Changes returns an iterator over the stored change records of a project.
func (db *DB) Changes(community, project string) iter.Seq2[*gerrit.Record, error] {
	return db.scan(changeKind, community, project)
}

// Comments returns an iterator over the stored comment records of a project.
func (db *DB) Comments(community, project string) iter.Seq2[*gerrit.Record, error] {
	return db.scan(commentKind, community, project)
}

func (db *DB) put(kind, community, project string, recs []*gerrit.Record) error {
	b := db.p.NewBatch()
	defer b.Close()

	if err := b.DeleteRange(o(kind, community, project), o(kind, community, project, ordered.Inf), nil); err != nil {
		return err
	}
	for i, r := range recs {
		js, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("archive %s %s/%s #%d: %w", kind, community, project, i, err)
		}
		if err := b.Set(o(kind, community, project, i), js, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return err
	}
	db.slog.Info("archive stored records", "kind", kind, "community", community, "project", project, "n", len(recs))
	return nil
}

func (db *DB) scan(kind, community, project string) iter.Seq2[*gerrit.Record, error] {
	return func(yield func(*gerrit.Record, error) bool) {
		it, err := db.p.NewIter(&pebble.IterOptions{
			LowerBound: o(kind, community, project),
			UpperBound: o(kind, community, project, ordered.Inf),
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer it.Close()

		for it.First(); it.Valid(); it.Next() {
			var seq int
			if err := ordered.Decode(it.Key(), nil, nil, nil, &seq); err != nil {
				yield(nil, fmt.Errorf("archive: malformed key %q: %w", it.Key(), err))
				return
			}
			r := new(gerrit.Record)
			if err := json.Unmarshal(it.Value(), r); err != nil {
				if !yield(nil, fmt.Errorf("archive %s %s/%s #%d: %w", kind, community, project, seq, err)) {
					return
				}
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(nil, err)
		}
	}
}
