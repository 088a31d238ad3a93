// internal/cli/list_commands.go
package lime

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// commandsCmd implements 'list commands', which prints the command tree in
// an indented, two-column format.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all commands and subcommands in two columns",
	Run: func(cmd *cobra.Command, args []string) {
		writeCommandTree(cmd.OutOrStdout(), collectCommandData(rootCmd, "", ""))
	},
}

func init() {
	listCmd.AddCommand(commandsCmd)
}

// commandInfo holds the path and description of a command for display.
type commandInfo struct {
	path        string
	description string
}

func writeCommandTree(out io.Writer, commands []commandInfo) {
	width := 0
	for _, c := range commands {
		width = max(width, len(c.path))
	}
	fmt.Fprintln(out, "Commands and Subcommands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %s%s%s\n", c.path, strings.Repeat(" ", width-len(c.path)+2), c.description)
	}
}

// collectCommandData walks the command tree depth first. Help and shell
// completion commands are skipped.
func collectCommandData(cmd *cobra.Command, currentPath, indent string) []commandInfo {
	fullPath := cmd.Name()
	if currentPath != "" {
		fullPath = currentPath + " " + cmd.Name()
	}
	all := []commandInfo{{path: indent + fullPath, description: cmd.Short}}
	for _, sub := range cmd.Commands() {
		if sub.Name() == "completion" || sub.Name() == "help" {
			continue
		}
		all = append(all, collectCommandData(sub, fullPath, indent+"  ")...)
	}
	return all
}
