// internal/cli/list_sheets.go
package lime

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/mwiater/lime/internal/sheet"
	"github.com/spf13/cobra"
)

// sheetsCmd implements 'list sheets', which parses the input sheets of a
// directory without evaluating them.
var sheetsCmd = &cobra.Command{
	Use:   "sheets [dir]",
	Short: "List input sheets with their question and warning counts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := GetConfig()
		if rc == nil {
			return fmt.Errorf("configuration not loaded")
		}
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		paths, err := sheet.Collect(dir, rc.InputSheetPrefix, ".md")
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No sheets named *%s*.md in %s\n", rc.InputSheetPrefix, dir)
			return nil
		}

		t := newTable(!isTerminal(cmd.OutOrStdout()), "file", "sheet", "questions", "warnings")
		for _, path := range paths {
			s, err := sheet.ParseFile(path)
			if err != nil {
				t.Row(filepath.Base(path), "error: "+err.Error(), "-", "-")
				continue
			}
			warns := len(s.Warnings)
			for _, q := range s.Questions {
				warns += len(q.Warnings)
			}
			t.Row(filepath.Base(path), s.Name, strconv.Itoa(len(s.Questions)), strconv.Itoa(warns))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	listCmd.AddCommand(sheetsCmd)
}
