package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools each specialist may call",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SPECIALIST\tTOOL\tDESCRIPTION")
		for _, kind := range contractx.SpecialistKinds {
			for _, info := range a.tools.Infos(kind) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", kind, info.Name, strings.TrimSpace(info.Desc))
			}
		}
		return w.Flush()
	},
}
