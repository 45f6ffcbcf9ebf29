package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDraftCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Inspect or clear a sender's booking draft",
	}
	cmd.AddCommand(newDraftGetCmd(a))
	cmd.AddCommand(newDraftClearCmd(a))
	return cmd
}

func newDraftGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <sender>",
		Short: "Print the stored draft as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			store, err := a.drafts(cmd.Context(), cfg, a.logger(cfg))
			if err != nil {
				return err
			}
			draft, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if draft == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no draft for %s\n", args[0])
				return nil
			}
			data, err := json.MarshalIndent(draft, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n%s\n", draft.State(), data)
			return nil
		},
	}
}

func newDraftClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <sender>",
		Short: "Delete the stored draft so the next message starts fresh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config()
			store, err := a.drafts(cmd.Context(), cfg, a.logger(cfg))
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared draft for %s\n", args[0])
			return nil
		},
	}
}
