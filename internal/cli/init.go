// internal/cli/init.go
package lime

import (
	"fmt"
	"os"

	"github.com/mwiater/lime/internal/appconfig"
	"github.com/spf13/cobra"
)

// initCmd implements 'init', which writes a workspace config template.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a workspace .lime/config.yaml",
	Long: `The 'init' command writes .lime/config.yaml into the working directory (or
--dir). Styles: inert comments out every setting, full keeps them active, bare
drops the comments and blank writes only the header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		style, _ := cmd.Flags().GetString("style")
		force, _ := cmd.Flags().GetBool("force")
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			dir = wd
		}
		path, err := appconfig.WriteTemplate(dir, style, force)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().String("style", appconfig.StyleInert, "template style: inert, full, bare or blank")
	initCmd.Flags().Bool("force", false, "overwrite an existing config")
	initCmd.Flags().String("dir", "", "workspace directory (defaults to the working directory)")

	rootCmd.AddCommand(initCmd)
}
