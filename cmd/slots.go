package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
)

var (
	slotsPractitioner   string
	slotsSpecialization string
	slotsLimit          int
)

var slotsCmd = &cobra.Command{
	Use:   "slots [date]",
	Short: "List free slots for a day",
	Long: `List free appointment slots for one day. The date accepts YYYY-MM-DD,
DD-MM-YYYY, today or tomorrow; it defaults to tomorrow.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		raw := "tomorrow"
		if len(args) == 1 {
			raw = args[0]
		}
		day, err := resolveDay(raw, a.schedule.Now(), a.catalog.Location())
		if err != nil {
			return err
		}

		days, err := a.schedule.FreeSlots(ctx, schedule.SlotQuery{
			Practitioner:   slotsPractitioner,
			Specialization: slotsSpecialization,
			Day:            day,
			Limit:          slotsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "PRACTITIONER\tSPECIALIZATION\tFREE (%s)\n", day.Format("Mon 02 Jan 2006"))
		for _, d := range days {
			times := make([]string, 0, len(d.Slots))
			for _, s := range d.Slots {
				times = append(times, s.Start.In(a.catalog.Location()).Format("15:04"))
			}
			free := strings.Join(times, " ")
			if free == "" {
				free = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Practitioner.DisplayName(), d.Practitioner.Specialization, free)
		}
		return w.Flush()
	},
}

func init() {
	slotsCmd.Flags().StringVar(&slotsPractitioner, "practitioner", "", "practitioner name, e.g. \"Dr. Lee\"")
	slotsCmd.Flags().StringVar(&slotsSpecialization, "specialization", "", "specialization, e.g. orthodontist")
	slotsCmd.Flags().IntVar(&slotsLimit, "limit", 0, "maximum slots per practitioner (0 for all)")
}

func resolveDay(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}
	return toolx.ParseDate(raw, loc)
}
