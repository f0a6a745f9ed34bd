package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fhirsql/internal/cli/output"
	"github.com/leapstack-labs/fhirsql/pkg/adapter"
	"github.com/leapstack-labs/fhirsql/pkg/dialect"
)

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List SQL dialects and database adapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := output.FromContext(cmd.Context())

			var rows [][]string
			for _, name := range dialect.List() {
				d, _ := dialect.Get(name)
				cfg := d.Config()
				conn := "no"
				if adapter.IsRegistered(name) {
					conn = "yes"
				}
				rows = append(rows, []string{name, cfg.JSONType, cfg.DecimalType, cfg.Placeholder.Format(1), conn})
			}
			return r.Table([]string{"dialect", "json type", "decimal type", "placeholder", "adapter"}, rows)
		},
	}
}
