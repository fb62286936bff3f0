package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/orchestrator"
	nodex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/nodes"
)

var (
	askConversation string
	askPatient      string
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send a single message and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.agent.HandleTurn(ctx, orchestrator.TurnRequest{
			ConversationID: askConversation,
			PatientID:      askPatient,
			Text:           strings.Join(args, " "),
		})
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), nodex.FallbackAnswer)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
		if askConversation == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", resp.ConversationID)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "continue an existing conversation")
	askCmd.Flags().StringVar(&askPatient, "patient", "", "patient id used for bookings")
}
