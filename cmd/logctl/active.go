package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newActiveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Manage the locally cached active log",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the cached active log as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, closeFn, err := opts.activeLog()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := active.Load(cmd.Context())
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no active log")
				return nil
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached active log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, closeFn, err := opts.activeLog()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := active.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "active log cleared")
			return nil
		},
	}

	cmd.AddCommand(show, clearCmd)
	return cmd
}
