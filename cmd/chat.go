package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/faq"
	nodex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/nodes"
)

var (
	chatConversation string
	chatPatient      string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the clinic agent.

Type /new to start a fresh conversation, /id to print the conversation id
and /quit (or Ctrl-D) to leave. When CLINIC_FAQ_PATH is set the FAQ file is
reloaded on change; when CLINIC_NOTIFY_DESTINATION is set appointment events
are forwarded to QStash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "resume an existing conversation")
	chatCmd.Flags().StringVar(&chatPatient, "patient", "", "patient id used for bookings")
}

// runChat runs the REPL next to the background services until the user
// leaves or ctx is cancelled.
func (a *app) runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.notifier != nil {
		g.Go(func() error { return a.notifier.Run(gctx) })
	}
	if path := strings.TrimSpace(a.cfg.FAQPath); path != "" {
		g.Go(func() error { return faq.Watch(gctx, path, a.kb) })
	}
	g.Go(func() error {
		defer cancel()
		return a.repl(gctx, in, out)
	})

	return g.Wait()
}

func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	prompt := color.New(color.FgCyan, color.Bold)
	conversationID := chatConversation
	fmt.Fprintln(out, color.New(color.Faint).Sprint("Ask about appointments or the clinic. /quit to leave."))

	for {
		prompt.Fprint(out, "you> ")
		var text string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			text = strings.TrimSpace(line)
		}

		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			conversationID = ""
			fmt.Fprintln(out, color.New(color.Faint).Sprint("started a new conversation"))
			continue
		case "/id":
			fmt.Fprintln(out, conversationID)
			continue
		}

		resp, err := a.agent.HandleTurn(ctx, orchestrator.TurnRequest{
			ConversationID: conversationID,
			PatientID:      chatPatient,
			Text:           text,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("conversation_id", conversationID).Msg("turn failed")
			printAnswer(out, nodex.FallbackAnswer, contractx.TurnFailed)
			continue
		}
		conversationID = resp.ConversationID
		printAnswer(out, resp.Answer, resp.Status)
	}
}

func printAnswer(out io.Writer, answer string, status contractx.TurnStatus) {
	c := color.New(color.FgGreen)
	switch status {
	case contractx.TurnClarify:
		c = color.New(color.FgYellow)
	case contractx.TurnFallback, contractx.TurnFailed:
		c = color.New(color.FgRed)
	}
	fmt.Fprintf(out, "%s %s\n", c.Sprint("clinic>"), answer)
}
