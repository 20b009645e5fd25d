package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/szibis/logship/internal/config"
)

func newValidateCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a configuration file without starting senders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := config.ValidateFile(args[0], os.LookupEnv)
			out := cmd.OutOrStdout()

			if jsonOut {
				fmt.Fprintln(out, result.JSON())
			} else {
				for _, issue := range result.Issues {
					fmt.Fprintf(out, "%-7s %s: %s\n", issue.Severity, issue.Field, issue.Message)
				}
				if result.Valid {
					fmt.Fprintf(out, "%s is valid\n", result.File)
				}
			}

			if !result.Valid {
				return errors.New("configuration is invalid")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	return cmd
}
