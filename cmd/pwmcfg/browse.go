package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dongho-jung/pwmcfg/internal/constants"
	"github.com/dongho-jung/pwmcfg/internal/nav"
	"github.com/dongho-jung/pwmcfg/internal/search"
)

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search TERM",
		Short: "Find settings by key, label or description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			groups, err := a.Searcher.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printGroups(cmd.OutOrStdout(), groups)
			return nil
		},
	}
}

func printGroups(out io.Writer, groups []search.Group) {
	if search.Count(groups) == 0 {
		fmt.Fprintln(out, "No results")
		return
	}
	head := color.New(color.FgCyan, color.Bold)
	for _, g := range groups {
		head.Fprintln(out, g.Category)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range g.Results {
			label := r.Label
			if r.Profile != "" {
				label += " [" + r.Profile + "]"
			}
			fmt.Fprintf(w, "  %s\t%s\n", r.Key, label)
		}
		_ = w.Flush()
	}
}

func newTreeCmd(opts *options) *cobra.Command {
	var term string
	var modified bool
	var level int

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the navigation tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if level < constants.MinLevel || level > constants.MaxLevel {
				return fmt.Errorf("level must be between %d and %d", constants.MinLevel, constants.MaxLevel)
			}
			a, cleanup, err := connect(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			if cmd.Flags().Changed("modified") || cmd.Flags().Changed("level") {
				f := a.Session.Filter()
				if cmd.Flags().Changed("modified") {
					f.ModifiedOnly = modified
				}
				if cmd.Flags().Changed("level") {
					f.MaxLevel = level
				}
				if err := a.SetFilter(cmd.Context(), f); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if term != "" {
				rows := a.Tree.Filter(term)
				if len(rows) == 0 {
					fmt.Fprintln(out, "No results")
					return nil
				}
				match := color.New(color.FgYellow, color.Bold)
				for _, r := range rows {
					indent := strings.Repeat("  ", r.Depth)
					if r.Matched {
						match.Fprintln(out, indent+r.Name)
					} else {
						fmt.Fprintln(out, indent+r.Name)
					}
				}
				return nil
			}
			printTree(out, a.Tree, a.Tree.Roots(), 0)
			return nil
		},
	}
	cmd.Flags().StringVarP(&term, "filter", "f", "", "fuzzy filter on node names")
	cmd.Flags().BoolVarP(&modified, "modified", "m", false, "show only modified settings")
	cmd.Flags().IntVarP(&level, "level", "l", constants.DefaultMaxLevel, "maximum setting level")
	return cmd
}

func printTree(out io.Writer, t *nav.Tree, nodes []nav.Node, depth int) {
	dim := color.New(color.Faint)
	for _, n := range nodes {
		line := strings.Repeat("  ", depth) + n.Name
		if n.Selectable() {
			fmt.Fprintln(out, line)
		} else {
			dim.Fprintln(out, line)
		}
		printTree(out, t, t.Children(n.ID), depth+1)
	}
}
