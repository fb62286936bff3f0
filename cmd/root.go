package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/config"
	logx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/logger"
)

var (
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "clinic",
	Short: "Conversational agent for dental clinic appointments",
	Long: `clinic routes free-form messages to booking, cancellation, rescheduling
and FAQ specialists, and executes their tool calls against the appointment
store.

Without an LLM_API_KEY it runs fully on the rule-based supervisor and
slot extractor.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configx.SetEnvFile(envFile)
		conf, err := configx.New[logx.Config]("LOG")
		if err != nil {
			return fmt.Errorf("load log config: %w", err)
		}
		if debug {
			conf.Debug = true
		}
		logx.Init(*conf)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printStatus("✗", err.Error(), color.FgRed)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (default: $ENV_FILE or ./.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every orchestration step")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(toolsCmd)
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(os.Stderr, "%s %s\n", c.Sprint(symbol), message)
}
