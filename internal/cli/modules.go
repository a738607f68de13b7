package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uniquestream/packagekit/pkg/modules"
	"github.com/uniquestream/packagekit/pkg/storage"
)

func newModulesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Choose which host modules load at startup",
		Long: `Manage the host's modules.yaml. Changes take effect the next time the
host starts.`,
	}

	cmd.AddCommand(
		newModulesListCommand(a),
		newModulesToggleCommand(a, "disable", false),
		newModulesToggleCommand(a, "enable", true),
		newModulesSyncCommand(a),
	)
	return cmd
}

func (a *app) moduleState() (*modules.State, error) {
	return modules.NewState(a.cfg.ModulesFile(), a.logger.Named("modules"))
}

func newModulesListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := a.moduleState()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			entries := state.List()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No modules recorded. Run 'pkgctl modules sync <file>' first.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "MODULE\tNAME\tVERSION\tENABLED\tFEATURES")
			for _, e := range entries {
				features := append(append(append(append([]string{}, e.Sources...), e.Outputs...), e.Encoders...), e.Services...)
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					e.ModuleName,
					orDash(e.DisplayName),
					orDash(e.Version),
					e.Enabled,
					truncateString(orDash(strings.Join(features, ",")), 40),
				)
			}
			return nil
		},
	}
}

func newModulesToggleCommand(a *app, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <module>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a module on next host start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := a.moduleState()
			if err != nil {
				return err
			}
			// modules.yaml only ever records modules the host allows to be disabled
			if err := state.SetEnabled(args[0], enabled, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Module %s will be %sd on next host start\n", args[0], verb)
			return nil
		},
	}
}

func newModulesSyncCommand(a *app) *cobra.Command {
	var locked []string

	cmd := &cobra.Command{
		Use:   "sync <loaded-modules.yaml>",
		Short: "Merge the modules a host reported loading into modules.yaml",
		Long: `Read the list of modules a host loaded (a YAML list of module records)
and merge it into modules.yaml. Modules named with --locked cannot be disabled
and are not recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loaded []modules.Module
			if err := storage.LoadYAMLFile(args[0], &loaded); err != nil {
				return err
			}

			state, err := a.moduleState()
			if err != nil {
				return err
			}

			reg := modules.NewMemoryRegistry(loaded, locked...)
			state.ApplyDisabled(reg)
			if err := state.Sync(reg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded %d module(s)\n", len(state.List()))
			if disabled := reg.Disabled(); len(disabled) > 0 {
				fmt.Fprintf(out, "Disabled at next start: %s\n", strings.Join(disabled, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&locked, "locked", nil, "modules that may not be disabled")
	return cmd
}
