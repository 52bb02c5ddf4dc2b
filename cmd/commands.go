package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"gate-system/internal/services/ledger"
	"gate-system/internal/services/secret"
	"gate-system/internal/services/token"
	"gate-system/models"
)

func newIssueTicketCommand(codec *token.Codec) *cobra.Command {
	var holder, ticketID, matchID, seat string

	command := &cobra.Command{
		Use:   "issue-ticket",
		Short: "Issue a signed ticket token",
		RunE: func(command *cobra.Command, args []string) error {
			raw, err := codec.Issue(command.Context(), holder, ticketID, nil, models.TicketClaims{
				MatchID:    matchID,
				SeatNumber: seat,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), raw)
			return nil
		},
	}

	command.Flags().StringVar(&holder, "holder", "", "ticket holder id (token subject)")
	command.Flags().StringVar(&ticketID, "ticket", "", "ticket id (UUID)")
	command.Flags().StringVar(&matchID, "match", "", "match id")
	command.Flags().StringVar(&seat, "seat", "", "seat number")
	_ = command.MarkFlagRequired("holder")
	_ = command.MarkFlagRequired("ticket")

	return command
}

func newIssueDeviceTokenCommand(codec *token.Codec) *cobra.Command {
	var gateID, deviceID string

	command := &cobra.Command{
		Use:   "issue-device-token",
		Short: "Issue a short-lived gate device token",
		RunE: func(command *cobra.Command, args []string) error {
			raw, err := codec.IssueDeviceToken(command.Context(), gateID, deviceID)
			if err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), raw)
			return nil
		},
	}

	command.Flags().StringVar(&gateID, "gate", "", "gate id")
	command.Flags().StringVar(&deviceID, "device", "", "device id")
	_ = command.MarkFlagRequired("gate")
	_ = command.MarkFlagRequired("device")

	return command
}

func newRotateSecretCommand(rotator *secret.Rotator) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-secret",
		Short: "Advance the signing secret rotation by one step",
		Long: "The first call stages a new secret. The next call promotes it and " +
			"archives the previous secret, which keeps verifying for the grace window.",
		RunE: func(command *cobra.Command, args []string) error {
			res, err := rotator.Rotate(command.Context())
			if err != nil {
				return err
			}
			out, err := json.Marshal(res)
			if err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), string(out))
			return nil
		},
	}
}

// newListSalesCommand prints one match's sales as JSON. The ledger is
// resolved when the command runs, after the app has opened its database.
func newListSalesCommand(sales func() ledger.MatchLister) *cobra.Command {
	var matchID string

	command := &cobra.Command{
		Use:   "list-sales",
		Short: "List the sales recorded for a match",
		RunE: func(command *cobra.Command, args []string) error {
			list, err := sales().ListByMatch(command.Context(), matchID)
			if err != nil {
				return err
			}
			if list == nil {
				list = []models.SaleRecord{}
			}
			out, err := json.MarshalIndent(list, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), string(out))
			return nil
		},
	}

	command.Flags().StringVar(&matchID, "match", "", "match id")
	_ = command.MarkFlagRequired("match")

	return command
}
