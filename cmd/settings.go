package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/sdm/internal/output"
	"github.com/tanq16/sdm/internal/utils"
	"gopkg.in/yaml.v3"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change persisted settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			output.PrintDebug("# " + configPath)
			fmt.Print(string(data))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set [KEY] [VALUE]",
		Short: "Persist one setting (eg. speed_limit 2MB, close_on_complete true)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := settings.Save(configPath); err != nil {
				return fmt.Errorf("error saving settings: %w", err)
			}
			compLog := utils.GetLogger("cmd")
			compLog.Info().Str("key", args[0]).Str("value", args[1]).Msg("setting changed")
			output.PrintSuccess(fmt.Sprintf("%s %s = %s", output.StyleSymbols["pass"], args[0], args[1]))
			return nil
		},
	})
	return cmd
}
