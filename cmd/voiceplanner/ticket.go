package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/jira"
)

func ticketCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Create and update JIRA tickets through the server",
	}
	cmd.AddCommand(ticketCreateCmd(e))
	cmd.AddCommand(ticketUpdateCmd(e))
	return cmd
}

func ticketCreateCmd(e *env) *cobra.Command {
	var in jira.TicketInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := e.tracker().CreateTicket(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s\n", ref.Ref())
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Summary, "summary", "", "ticket summary")
	cmd.Flags().StringVar(&in.Description, "description", "", "ticket description")
	cmd.Flags().StringVar(&in.Estimate, "estimate", "", "original estimate, e.g. 2h")
	cmd.MarkFlagRequired("summary")
	return cmd
}

func ticketUpdateCmd(e *env) *cobra.Command {
	var summary, description, estimate string
	cmd := &cobra.Command{
		Use:   "update <ticket-id>",
		Short: "Update a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes jira.TicketChanges
			if cmd.Flags().Changed("summary") {
				changes.Summary = &summary
			}
			if cmd.Flags().Changed("description") {
				changes.Description = &description
			}
			if cmd.Flags().Changed("estimate") {
				changes.Estimate = &estimate
			}
			ref, err := e.tracker().UpdateTicket(cmd.Context(), args[0], changes)
			if err != nil {
				return err
			}
			fmt.Printf("Updated %s\n", ref.Ref())
			return nil
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "new summary")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&estimate, "estimate", "", "new original estimate")
	return cmd
}
