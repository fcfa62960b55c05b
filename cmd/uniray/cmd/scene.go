package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FlamingRiot/Uniray-sub000/internal/dat"
	"github.com/FlamingRiot/Uniray-sub000/internal/scene"
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Inspect and convert scenes",
}

var sceneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scenes of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		w, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.Close()

		scenes := w.Project().Scenes
		if len(scenes) == 0 {
			fmt.Println("(no scenes)")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tMODELS\tCAMERAS")
		for _, s := range scenes {
			ms, cs := s.Split()
			fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Name, len(ms), len(cs))
		}
		return tw.Flush()
	},
}

var sceneDecodeCmd = &cobra.Command{
	Use:   "decode <file.DAT>",
	Short: "Decrypt a .DAT file and print its objects as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := dat.ReadFile(args[0], datOptions()...)
		if err != nil {
			return err
		}
		ms, cs := s.Split()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Name    string          `json:"name"`
			Models  []*scene.Model  `json:"models"`
			Cameras []*scene.Camera `json:"cameras"`
		}{s.Name, ms, cs})
	},
}

var sceneHeaderCmd = &cobra.Command{
	Use:   "header <file.DAT>",
	Short: "Print the header and section table of a .DAT file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		h, err := dat.ReadHeader(data)
		if err != nil {
			return err
		}
		fmt.Printf("objects:      %d\n", h.ObjectCount)
		fmt.Printf("table offset: %d\n", h.TableOffset)
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SECTION\tINDEX\tSIZE")
		for _, e := range h.Entries {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", e.Name, e.Index, e.Size)
		}
		return tw.Flush()
	},
}

var sceneConvertCmd = &cobra.Command{
	Use:   "convert <name>",
	Short: "Convert a scene stored as legacy JSON files to .DAT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		dir := scene.Dir(cfg.ProjectRoot, args[0])
		if !scene.HasLegacy(dir) {
			return fmt.Errorf("no legacy scene files in %s", dir)
		}
		s, err := scene.LoadLegacy(dir, args[0])
		if err != nil {
			return err
		}
		out := scene.DatPath(cfg.ProjectRoot, args[0])
		if err := dat.WriteFile(ctx, s, out, datOptions()...); err != nil {
			return err
		}
		fmt.Printf("✓ %s: %d objects\n", out, len(s.Objects))
		return nil
	},
}

func datOptions() []dat.Option {
	if cfg.DatPassphrase != "" {
		return []dat.Option{dat.WithPassphrase(cfg.DatPassphrase)}
	}
	return nil
}

func init() {
	sceneCmd.AddCommand(sceneListCmd)
	sceneCmd.AddCommand(sceneDecodeCmd)
	sceneCmd.AddCommand(sceneHeaderCmd)
	sceneCmd.AddCommand(sceneConvertCmd)
	rootCmd.AddCommand(sceneCmd)
}
