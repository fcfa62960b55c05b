package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FlamingRiot/Uniray-sub000/internal/pak"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
)

var pakCmd = &cobra.Command{
	Use:   "pak",
	Short: "Create and inspect .pak archives",
}

var pakBuildCmd = &cobra.Command{
	Use:   "build <category> [output]",
	Short: "Pack one asset category into an archive",
	Long: `Pack the files of an asset category into a .pak archive.
The output defaults to <build dir>/<category>.pak.
Example: uniray pak build models build/models.pak --recursive`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cat, err := models.ParseCategory(args[0])
		if err != nil {
			return err
		}
		out := filepath.Join(cfg.BuildPath(), string(cat)+".pak")
		if len(args) == 2 {
			out = args[1]
		}

		w, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.Close()

		level := cfg.PakCompressionLevel
		if cmd.Flags().Changed("level") {
			level, _ = cmd.Flags().GetInt("level")
		}
		opts := []pak.Option{pak.WithLevel(level)}
		if recursive, _ := cmd.Flags().GetBool("recursive"); recursive || cfg.PakRecursive {
			opts = append(opts, pak.WithRecursive())
		}
		sum, err := pak.CreatePakFile(ctx, w.Files().Root(cat), out, opts...)
		if err != nil {
			return fmt.Errorf("failed to build archive: %w", err)
		}
		fmt.Printf("✓ %s: %d entries, %d -> %d bytes in %s\n",
			sum.Path, len(sum.Entries), sum.OriginalBytes, sum.CompressedBytes, sum.Duration.Round(time.Millisecond))
		return nil
	},
}

var pakListCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the entries of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := pak.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		entries := r.Entries()
		if len(entries) == 0 {
			fmt.Println("(empty archive)")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tSIZE\tCOMPRESSED\tOFFSET")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", e.Name, e.FileType, e.OriginalSize, e.CompressedSize, e.Index)
		}
		return tw.Flush()
	},
}

var pakCatCmd = &cobra.Command{
	Use:   "cat <archive> <name>",
	Short: "Write the decompressed content of one entry to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := pak.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		data, err := r.LoadRawFile(args[1])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var pakExtractCmd = &cobra.Command{
	Use:   "extract <archive> <dir>",
	Short: "Extract every entry of an archive into a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		r, err := pak.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		paths, err := r.Extract(ctx, args[1])
		if err != nil {
			return fmt.Errorf("failed to extract: %w", err)
		}
		fmt.Printf("✓ Extracted %d files to %s\n", len(paths), args[1])
		return nil
	},
}

func init() {
	pakBuildCmd.Flags().Int("level", -1, "gzip compression level, -2..9 (UNIRAY_PAK_COMPRESSION_LEVEL)")
	pakBuildCmd.Flags().Bool("recursive", false, "Also pack files of sub-folders (UNIRAY_PAK_RECURSIVE)")

	pakCmd.AddCommand(pakBuildCmd)
	pakCmd.AddCommand(pakListCmd)
	pakCmd.AddCommand(pakCatCmd)
	pakCmd.AddCommand(pakExtractCmd)
	rootCmd.AddCommand(pakCmd)
}
