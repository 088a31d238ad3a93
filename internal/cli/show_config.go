// internal/cli/show_config.go
package lime

import (
	"fmt"

	"github.com/mwiater/lime/internal/appconfig"
	"github.com/spf13/cobra"
)

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show the merged configuration: which files were read, in which order, which secrets were found and the values flags left in effect. --dump prints the whole structure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := GetConfig()
		if rc == nil {
			return fmt.Errorf("configuration not loaded")
		}
		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			appconfig.DumpConfig(cmd.OutOrStdout(), rc.Config)
			return nil
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), rc)
		return nil
	},
}

func init() {
	showConfigCmd.Flags().Bool("dump", false, "pretty-print the whole configuration struct")
	showCmd.AddCommand(showConfigCmd)
}
