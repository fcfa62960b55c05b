package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Pack every category and scene of the project",
	Long: `Pack each asset category into <category>.pak and each scene into
<scene>.DAT under the build directory. When PUBLISH_BACKEND is set the
artifacts are uploaded under the project name. Artifacts identical to the
last publish are skipped and artifacts no longer built are removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		if noPublish, _ := cmd.Flags().GetBool("no-publish"); noPublish {
			cfg.PublishBackend = ""
		}
		out, _ := cmd.Flags().GetString("out")

		w, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.Close()

		report, err := w.Build(ctx, out)
		if err != nil {
			return fmt.Errorf("build failed: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ARTIFACT\tENTRIES\tSIZE\tCOMPRESSED")
		for _, p := range report.Paks {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", p.Path, len(p.Entries), p.OriginalBytes, p.CompressedBytes)
		}
		for _, s := range report.Scenes {
			fmt.Fprintf(tw, "%s\t-\t-\t-\n", s)
		}
		tw.Flush()

		if p := report.Published; p != nil {
			for _, key := range p.Uploaded {
				fmt.Printf("published %s\n", key)
			}
			for _, key := range p.Removed {
				fmt.Printf("removed   %s\n", key)
			}
			if n := len(p.Unchanged); n > 0 {
				fmt.Printf("%d unchanged\n", n)
			}
		}
		fmt.Printf("✓ Built %d artifacts in %s\n", len(report.Artifacts()), report.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	buildCmd.Flags().String("out", "", "Output directory (default: UNIRAY_BUILD_DIR under the project)")
	buildCmd.Flags().Bool("no-publish", false, "Skip publishing even if PUBLISH_BACKEND is set")
	rootCmd.AddCommand(buildCmd)
}
