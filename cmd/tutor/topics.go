package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTopicsCmd() *cobra.Command {
	topics := &cobra.Command{
		Use:   "topics",
		Short: "Inspect and extend the topic registry",
	}

	topics.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered topics and their spellings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), configFrom(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOPIC\tVARIANTS")
			for _, t := range a.registry.Topics() {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, strings.Join(t.Variants, ", "))
			}
			return tw.Flush()
		},
	})

	topics.AddCommand(&cobra.Command{
		Use:   "add <name> [variant...]",
		Short: "Register a canonical topic with optional alternate spellings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), configFrom(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.registry.Register(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", strings.TrimSpace(args[0]))
			return nil
		},
	})

	return topics
}
