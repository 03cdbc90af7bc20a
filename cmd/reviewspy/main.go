// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Reviewspy collects code changes and their inline review comments
// from Gerrit communities and saves them as spreadsheets.
//
// Usage:
//
//	reviewspy communities
//	reviewspy collect [flags] community project
//
// For example, to collect the changes of OpenStack Nova closed in 2020:
//
//	reviewspy collect --after 2020-01-01 --before 2021-01-01 --status closed openstack nova
//
// This writes “code changes - nova - openstack.xlsx” and
// “review comments - nova - openstack.xlsx” in the current directory.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/reviewspy/internal/community"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are the flags shared by all subcommands.
type globalFlags struct {
	verbose     bool
	communities string
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "reviewspy",
		Short:        "Collect code changes and review comments from Gerrit communities",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug messages")
	root.PersistentFlags().StringVar(&g.communities, "communities", "", "read the supported communities from YAML `file`")

	root.AddCommand(newCommunitiesCmd(&g))
	root.AddCommand(newCollectCmd(&g))
	return root
}

// logger returns the logger for cmd, writing to its error stream.
func (g *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// registry returns the communities named by the --communities flag,
// or the built-in list.
func (g *globalFlags) registry() (*community.Registry, error) {
	if g.communities == "" {
		return community.Default(), nil
	}
	return community.Load(g.communities)
}

func newCommunitiesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "communities",
		Short: "List the supported communities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := g.registry()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, name := range reg.Names() {
				c, _ := reg.Lookup(name)
				fmt.Fprintf(w, "%-12s %s\n", c.Name, c.URL)
			}
			return nil
		},
	}
}
