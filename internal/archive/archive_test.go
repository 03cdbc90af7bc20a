// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archive

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/reviewspy/internal/gerrit"
	"golang.org/x/reviewspy/internal/testutil"
)

func records(t *testing.T, js ...string) []*gerrit.Record {
	t.Helper()
	var recs []*gerrit.Record
	for _, j := range js {
		r := new(gerrit.Record)
		if err := json.Unmarshal([]byte(j), r); err != nil {
			t.Fatal(err)
		}
		recs = append(recs, r)
	}
	return recs
}

// encode returns the JSON form of each record, which
// keeps both field order and values.
func encode(t *testing.T, recs []*gerrit.Record) []string {
	t.Helper()
	var out []string
	for _, r := range recs {
		js, err := json.Marshal(r)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, string(js))
	}
	return out
}

func collect(t *testing.T, seq func(func(*gerrit.Record, error) bool)) []*gerrit.Record {
	t.Helper()
	var recs []*gerrit.Record
	for r, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, r)
	}
	return recs
}

func TestArchive(t *testing.T) {
	check := testutil.Checker(t)
	dir := filepath.Join(t.TempDir(), "db")
	db, err := Open(testutil.Slogger(t), dir)
	check(err)

	changes := make([]string, 12) // more than 10, to check numeric key order
	for i := range changes {
		changes[i] = `{"id":"openstack%2Fnova~master~I` + string(rune('a'+i)) + `","_number":` + string(rune('0'+i%10)) + `,"status":"MERGED"}`
	}
	comments := []string{
		`{"message":"nit","id":"c1","change_id":"openstack%2Fnova~master~Ia","file":"a.py"}`,
		`{"message":"done","id":"c2","change_id":"openstack%2Fnova~master~Ia","file":"a.py"}`,
	}
	check(db.PutChanges("openstack", "nova", records(t, changes...)))
	check(db.PutComments("openstack", "nova", records(t, comments...)))
	check(db.PutChanges("openstack", "neutron", records(t, `{"id":"other"}`)))

	if diff := cmp.Diff(changes, encode(t, collect(t, db.Changes("openstack", "nova")))); diff != "" {
		t.Errorf("Changes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(comments, encode(t, collect(t, db.Comments("openstack", "nova")))); diff != "" {
		t.Errorf("Comments mismatch (-want +got):\n%s", diff)
	}
	if got := collect(t, db.Comments("openstack", "neutron")); len(got) != 0 {
		t.Errorf("neutron has %d comments, want 0", len(got))
	}

	// Storing again replaces the earlier list.
	check(db.PutChanges("openstack", "nova", records(t, `{"id":"new"}`)))
	check(db.Close())

	db, err = Open(testutil.Slogger(t), dir)
	check(err)
	defer db.Close()
	if diff := cmp.Diff([]string{`{"id":"new"}`}, encode(t, collect(t, db.Changes("openstack", "nova")))); diff != "" {
		t.Errorf("Changes after replace mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{`{"id":"other"}`}, encode(t, collect(t, db.Changes("openstack", "neutron")))); diff != "" {
		t.Errorf("neutron changes mismatch (-want +got):\n%s", diff)
	}
	if n := len(collect(t, db.Comments("openstack", "nova"))); n != 2 {
		t.Errorf("nova has %d comments after reopen, want 2", n)
	}

	// Breaking out of the iteration stops it.
	n := 0
	for range db.Comments("openstack", "nova") {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iteration with break ran %d times", n)
	}
}
