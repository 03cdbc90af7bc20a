// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
	"golang.org/x/reviewspy/internal/archive"
	"golang.org/x/reviewspy/internal/gerrit"
	"golang.org/x/reviewspy/internal/testutil"
)

func TestQueryParams(t *testing.T) {
	for _, tt := range []struct {
		name string
		f    collectFlags
		want map[string]string
	}{
		{"none", collectFlags{}, map[string]string{}},
		{
			"named",
			collectFlags{after: "2020-01-01", status: "merged"},
			map[string]string{"after": "2020-01-01", "status": "merged"},
		},
		{
			"override",
			collectFlags{status: "merged", params: []string{"status=open", "owner=alice", "topic="}},
			map[string]string{"status": "open", "owner": "alice", "topic": ""},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.f.queryParams()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("queryParams() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, p := range []string{"status", "=open"} {
		f := collectFlags{params: []string{p}}
		if _, err := f.queryParams(); err == nil {
			t.Errorf("queryParams(--param %q) succeeded, want error", p)
		}
	}
}

var collectTxtar = `
-- /changes/ --
[
  {"id":"openstack%2Fnova~master~I1","project":"openstack/nova","_number":1,"branch":"master","change_id":"I1","status":"MERGED","subject":"fix","total_comment_count":3},
  {"id":"openstack%2Fnova~master~I2","project":"openstack/nova","branch":"master","change_id":"I2","status":"MERGED","total_comment_count":0}
]
-- /changes/openstack%2Fnova~master~I1/comments --
{"nova/a.py":[{"id":"c1","patch_set":1,"line":3,"message":"nit"},{"id":"c2","patch_set":1,"line":4,"message":"why?"}]}
`

// run runs the root command with args and returns its standard
// output and error streams.
func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errb bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errb)
	err = cmd.Execute()
	return out.String(), errb.String(), err
}

// communitiesFile writes a registry naming srv as openstack and
// returns its file name.
func communitiesFile(t *testing.T, srv *gerrit.TestServer) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "communities.yaml")
	data := "communities:\n  - name: openstack\n    url: " + srv.URL + "\n"
	if err := os.WriteFile(file, []byte(data), 0o666); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestCollect(t *testing.T) {
	check := testutil.Checker(t)
	srv := gerrit.NewTestServer()
	defer srv.Close()
	check(srv.LoadTxtarData([]byte(collectTxtar)))

	out := t.TempDir()
	db := filepath.Join(t.TempDir(), "db")
	stdout, stderr, err := run(t,
		"--communities", communitiesFile(t, srv),
		"collect", "--after", "2020-01-01", "--param", "status=merged",
		"--out", out, "--db", db,
		"openstack", "nova")
	if err != nil {
		t.Fatalf("collect: %v\nstderr:\n%s", err, stderr)
	}

	reqs := srv.Requests()
	if len(reqs) == 0 || !strings.HasPrefix(reqs[0], "/changes/?q=project%3Aopenstack%2Fnova+") {
		t.Errorf("first request = %v, want change query", reqs)
	}

	changesFile := filepath.Join(out, "code changes - nova - openstack.xlsx")
	commentsFile := filepath.Join(out, "review comments - nova - openstack.xlsx")
	for _, line := range []string{
		"2 code changes written to " + changesFile,
		"2 review comments written to " + commentsFile,
		"the number of review comments of openstack%2Fnova~master~I1 is 3 but got 2",
		"1 changes skipped",
		"openstack%2Fnova~master~I2",
	} {
		if !strings.Contains(stdout, line) {
			t.Errorf("output missing %q:\n%s", line, stdout)
		}
	}

	rows := readRows(t, changesFile, "code changes")
	if len(rows) != 3 || rows[1][0] != "openstack%2Fnova~master~I1" {
		t.Errorf("code changes rows = %v", rows)
	}
	rows = readRows(t, commentsFile, "review comments")
	if len(rows) != 3 {
		t.Fatalf("review comments rows = %v", rows)
	}
	header := rows[0]
	if header[len(header)-2] != gerrit.ChangeIDField || header[len(header)-1] != gerrit.FileField {
		t.Errorf("review comments header = %v", header)
	}

	a, err := archive.Open(testutil.Slogger(t), db)
	check(err)
	defer a.Close()
	n := 0
	for r, err := range a.Comments("openstack", "nova") {
		check(err)
		if r.String(gerrit.FileField) != "nova/a.py" {
			t.Errorf("archived comment file = %q", r.String(gerrit.FileField))
		}
		n++
	}
	if n != 2 {
		t.Errorf("archived %d comments, want 2", n)
	}
}

func TestCollectSkipComments(t *testing.T) {
	srv := gerrit.NewTestServer()
	defer srv.Close()
	testutil.Checker(t)(srv.LoadTxtarData([]byte(collectTxtar)))

	out := t.TempDir()
	stdout, _, err := run(t, "--communities", communitiesFile(t, srv),
		"collect", "--skip-comments", "--out", out, "openstack", "nova")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stdout, "review comments") {
		t.Errorf("output mentions comments:\n%s", stdout)
	}
	if n := len(srv.Requests()); n != 1 {
		t.Errorf("server got %d requests, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(out, "review comments - nova - openstack.xlsx")); err == nil {
		t.Error("comments spreadsheet written with --skip-comments")
	}
}

func TestCollectErrors(t *testing.T) {
	srv := gerrit.NewTestServer()
	defer srv.Close()
	file := communitiesFile(t, srv)

	for _, args := range [][]string{
		{"collect", "openstack"},
		{"--communities", file, "collect", "gnome", "nova"},
		{"--communities", file, "collect", "--status", "pending", "openstack", "nova"},
		{"--communities", file, "collect", "--param", "owner", "openstack", "nova"},
		{"--communities", filepath.Join(t.TempDir(), "missing.yaml"), "communities"},
	} {
		if _, _, err := run(t, args...); err == nil {
			t.Errorf("reviewspy %v succeeded, want error", args)
		}
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("server got %d requests, want 0", n)
	}
}

func TestCommunities(t *testing.T) {
	stdout, _, err := run(t, "communities")
	if err != nil {
		t.Fatal(err)
	}
	want := "openstack    https://review.opendev.org\n" +
		"qt           https://codereview.qt-project.org\n"
	if stdout != want {
		t.Errorf("communities output:\n%s\nwant:\n%s", stdout, want)
	}
}

func readRows(t *testing.T, file, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatal(err)
	}
	return rows
}
