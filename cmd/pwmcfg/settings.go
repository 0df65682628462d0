package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dongho-jung/pwmcfg/internal/app"
	"github.com/dongho-jung/pwmcfg/internal/editor"
	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/logging"
)

// loadEditor connects, scopes the session to profile and loads the editor
// for key.
func loadEditor(cmd *cobra.Command, opts *options, key, profile string) (editor.Editor, *app.App, func(), error) {
	a, cleanup, err := connect(cmd, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	a.Session.SetProfile(profile)
	if profile != "" {
		logging.Global().SetContext(profile)
	}
	e, err := a.Editor(key)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	if err := e.Load(cmd.Context()); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return e, a, cleanup, nil
}

func newGetCmd(opts *options) *cobra.Command {
	var profile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Show the current value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, a, cleanup, err := loadEditor(cmd, opts, args[0], profile)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if asJSON {
				r, err := a.Session.Read(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(r.Value))
				return err
			}

			d := e.Descriptor()
			bold := color.New(color.Bold)
			dim := color.New(color.Faint)
			bold.Fprintln(out, d.Label)
			dim.Fprintf(out, "%s · %s\n", d.Key, d.Syntax)
			if e.Modified() {
				color.New(color.FgYellow).Fprintln(out, i18n.T("tui.status.modified"))
			} else {
				dim.Fprintln(out, i18n.T("tui.status.default"))
			}
			for _, line := range e.Render() {
				fmt.Fprintln(out, "  "+line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "profile of a profiled setting")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON value")
	return cmd
}

func newSetCmd(opts *options) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a setting",
		Long: `Change a setting. VALUE is parsed the way the editor for the setting's
syntax parses typed input; JSON is accepted for structured values.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, cleanup, err := loadEditor(cmd, opts, args[0], profile)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := e.Write(cmd.Context(), args[1]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			data := map[string]any{"Key": args[0]}
			color.New(color.FgGreen).Fprintln(out, i18n.T("cli.saved", data))
			if res := e.LastWrite(); res.ReloadRequired {
				color.New(color.FgYellow).Fprintln(out, i18n.T("cli.reload", data))
			} else if res.Message != "" {
				fmt.Fprintln(out, res.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "profile of a profiled setting")
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "reset KEY",
		Short: "Restore a setting to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, cleanup, err := loadEditor(cmd, opts, args[0], profile)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := e.Reset(cmd.Context()); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), i18n.T("cli.reset", map[string]any{"Key": args[0]}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "profile of a profiled setting")
	return cmd
}

func newExecCmd(opts *options) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "exec KEY FUNCTION [JSON]",
		Short: "Run a server-side function of a setting",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra any
			if len(args) == 3 {
				raw := strings.TrimSpace(args[2])
				if !json.Valid([]byte(raw)) {
					return fmt.Errorf("invalid JSON argument: %s", raw)
				}
				extra = json.RawMessage(raw)
			}

			e, _, cleanup, err := loadEditor(cmd, opts, args[0], profile)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := e.Execute(cmd.Context(), args[1], extra)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Message != "" {
				color.New(color.FgGreen).Fprintln(out, res.Message)
			}
			if len(res.Data) > 0 && string(res.Data) != "null" {
				fmt.Fprintln(out, string(res.Data))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "profile of a profiled setting")
	return cmd
}
