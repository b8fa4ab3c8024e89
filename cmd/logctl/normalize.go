package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"alcyxob/setpad/internal/domain"
)

func newNormalizeCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Repair a training log JSON file",
		Long: `Fill in missing names, dates, rows and sets, fix unknown weight units and
assign stable row keys. Reads stdin when the file is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if write && path == "-" {
				return fmt.Errorf("--write needs a file, not stdin")
			}

			var raw []byte
			var err error
			if path == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(path)
			}
			if err != nil {
				return err
			}

			rec, err := domain.DecodeLogRecord(raw)
			if err != nil {
				return fmt.Errorf("%s is not a training log: %w", path, err)
			}
			out, err := json.MarshalIndent(domain.Normalize(rec, time.Now()), "", "  ")
			if err != nil {
				return err
			}
			out = append(out, '\n')

			if write {
				return os.WriteFile(path, out, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "overwrite the file instead of printing")
	return cmd
}
