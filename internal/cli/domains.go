package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/coursework/internal/domain"
	"github.com/ppiankov/coursework/internal/model"
)

// domainsCmd represents the domains command
var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List subject domains, their keywords and hour estimates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tKEYWORDS\tHOURS")
		for _, d := range domain.All {
			p := domain.ProfileFor(d)
			keywords := append([]string(nil), p.Keywords...)
			sort.Strings(keywords)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d, p.Name, abbreviate(keywords, 6), formatHours(p.HourEstimates))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nDefault hours: %s\n", formatHours(domain.DefaultHours()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(domainsCmd)
}

func abbreviate(items []string, n int) string {
	if len(items) == 0 {
		return "-"
	}
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(items[:n], ", "), len(items)-n)
}

func formatHours(hours map[model.AssignmentType]float64) string {
	if len(hours) == 0 {
		return "-"
	}
	types := make([]string, 0, len(hours))
	for t := range hours {
		types = append(types, string(t))
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%g", t, hours[model.AssignmentType(t)]))
	}
	return strings.Join(parts, " ")
}
