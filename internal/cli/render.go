// internal/cli/render.go
package lime

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mwiater/lime/internal/aggregate"
	"github.com/mwiater/lime/internal/render"
	"github.com/mwiater/lime/internal/results"
	"github.com/spf13/cobra"
)

// renderCmd implements 'render', which turns result artifacts into markdown.
var renderCmd = &cobra.Command{
	Use:   "render <output.json|dir|glob>",
	Short: "Render result artifacts as markdown",
	Long: `The 'render' command converts result artifacts into markdown reports. By
default the markdown is printed; -w writes it next to each artifact with a .md
extension and --pretty styles it for the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().BoolP("write", "w", false, "write <artifact>.md next to each artifact")
	renderCmd.Flags().Bool("pretty", false, "render for the terminal")
	renderCmd.Flags().Int("width", render.DefaultWordWrap, "word wrap width for --pretty")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	rc := GetConfig()
	if rc == nil {
		return fmt.Errorf("configuration not loaded")
	}
	write, _ := cmd.Flags().GetBool("write")
	pretty, _ := cmd.Flags().GetBool("pretty")
	width, _ := cmd.Flags().GetInt("width")

	paths, err := renderTargets(args[0], rc.OutputSheetPrefix)
	if err != nil {
		return err
	}
	return renderArtifacts(cmd.OutOrStdout(), paths, write, pretty, width)
}

// renderTargets accepts a single artifact of any name, or a directory or
// glob filtered by the output prefix.
func renderTargets(pattern, prefix string) ([]string, error) {
	if info, err := os.Stat(pattern); err == nil && info.Mode().IsRegular() {
		return []string{pattern}, nil
	}
	return aggregate.CollectArtifacts(pattern, prefix)
}

func renderArtifacts(out io.Writer, paths []string, write, pretty bool, width int) error {
	for _, path := range paths {
		outcome, err := results.Read(path)
		if err != nil {
			return err
		}
		md := render.Markdown(outcome)

		if write {
			mdPath := strings.TrimSuffix(path, ".json") + ".md"
			if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", mdPath, err)
			}
			fmt.Fprintf(out, "wrote %s\n", mdPath)
			continue
		}
		if pretty {
			if md, err = render.Terminal(md, width); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, md)
	}
	return nil
}
