// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/reviewspy/internal/archive"
	"golang.org/x/reviewspy/internal/export"
	"golang.org/x/reviewspy/internal/gerrit"
)

type collectFlags struct {
	after        string
	before       string
	status       string
	params       []string // name=value
	out          string   // output directory
	db           string   // archive directory
	skipComments bool
}

func newCollectCmd(g *globalFlags) *cobra.Command {
	var f collectFlags
	cmd := &cobra.Command{
		Use:   "collect [flags] community project",
		Short: "Collect the changes of a project and their review comments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, g, &f, args[0], args[1])
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.after, "after", "", "only changes updated after `date` (YYYY-MM-DD)")
	fl.StringVar(&f.before, "before", "", "only changes updated before `date` (YYYY-MM-DD)")
	fl.StringVar(&f.status, "status", "", "only changes with `status` abandoned, closed, merged, open or reviewed")
	fl.StringArrayVar(&f.params, "param", nil, "add search parameter `name=value` (repeatable)")
	fl.StringVar(&f.out, "out", ".", "write spreadsheets to `dir`")
	fl.StringVar(&f.db, "db", "", "also store the records in the archive database in `dir`")
	fl.BoolVar(&f.skipComments, "skip-comments", false, "collect changes only")
	return cmd
}

// queryParams returns the search parameters named by the flags.
// The --param values are applied after the named flags,
// so a later --param status=x overrides --status.
func (f *collectFlags) queryParams() (map[string]string, error) {
	params := make(map[string]string)
	for name, v := range map[string]string{"after": f.after, "before": f.before, "status": f.status} {
		if v != "" {
			params[name] = v
		}
	}
	for _, p := range f.params {
		name, v, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", p)
		}
		params[name] = v
	}
	return params, nil
}

func runCollect(cmd *cobra.Command, g *globalFlags, f *collectFlags, community, project string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	lg := g.logger(cmd)
	reg, err := g.registry()
	if err != nil {
		return err
	}
	params, err := f.queryParams()
	if err != nil {
		return err
	}

	client := gerrit.New(lg, reg, nil)
	q, err := client.Query(community, project, params, nil)
	if err != nil {
		return err
	}
	lg.Info("collecting changes", "url", q.String())
	changes, err := q.Run(ctx)
	if err != nil {
		return err
	}

	var comments []*gerrit.Record
	var rep *gerrit.Report
	if !f.skipComments {
		comments, rep = client.Comments(changes, &gerrit.CommentOptions{Community: community}).Run(ctx)
	}

	s := &summary{changes: len(changes), comments: len(comments), report: rep}
	name := func(what string) string {
		return filepath.Join(f.out, fmt.Sprintf("%s - %s - %s", what, project, community))
	}
	if s.changesFile, err = export.Write("code changes", name("code changes"), changes); err != nil {
		return err
	}
	if !f.skipComments {
		if s.commentsFile, err = export.Write("review comments", name("review comments"), comments); err != nil {
			return err
		}
	}

	if f.db != "" {
		if err := store(lg, f.db, community, project, changes, comments, !f.skipComments); err != nil {
			return err
		}
	}

	s.print(cmd.OutOrStdout())
	return nil
}

// store writes the collected records to the archive in dir.
func store(lg *slog.Logger, dir, community, project string, changes, comments []*gerrit.Record, withComments bool) error {
	db, err := archive.Open(lg, dir)
	if err != nil {
		return err
	}
	if err := db.PutChanges(community, project, changes); err != nil {
		db.Close()
		return err
	}
	if withComments {
		if err := db.PutComments(community, project, comments); err != nil {
			db.Close()
			return err
		}
	}
	return db.Close()
}

// A summary describes the outcome of a collection for the user.
type summary struct {
	changes      int
	comments     int
	changesFile  string
	commentsFile string
	report       *gerrit.Report // nil if comments were not collected
}

func (s *summary) print(w io.Writer) {
	fmt.Fprintf(w, "%d code changes written to %s\n", s.changes, s.changesFile)
	if s.report == nil {
		return
	}
	fmt.Fprintf(w, "%d review comments written to %s\n", s.comments, s.commentsFile)

	warn := color.New(color.FgYellow)
	for _, r := range s.report.Mismatches() {
		warn.Fprintf(w, "warning: the number of review comments of %s is %d but got %d; please check it yourself\n",
			r.ID, r.Expected, r.Got)
	}
	if skipped := s.report.Skipped(); len(skipped) > 0 {
		warn.Fprintf(w, "warning: %d changes skipped:\n", len(skipped))
		for _, r := range skipped {
			fmt.Fprintf(w, "\t%s: %v\n", r.ID, r.Err)
		}
	}
}
