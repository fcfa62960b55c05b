package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FlamingRiot/Uniray-sub000/internal/asset"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
	"github.com/FlamingRiot/Uniray-sub000/pkg/tree"
)

var treeCmd = &cobra.Command{
	Use:   "tree [category]",
	Short: "Print the asset tree of the project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cats := models.Categories
		if len(args) == 1 {
			c, err := models.ParseCategory(args[0])
			if err != nil {
				return err
			}
			cats = []models.Category{c}
		}

		w, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.Close()

		for _, c := range cats {
			root := w.Files().Root(c)
			fmt.Printf("%s/ (%d files)\n", c, len(tree.Files(root)))
			printTree(root)
		}
		return nil
	},
}

func printTree(root *models.Folder) {
	tree.Walk(root, func(u models.Unit) error {
		if u == models.Unit(root) {
			return nil
		}
		depth := 0
		for up := u.Upstream(); up != nil && up != root; up = up.Upstream() {
			depth++
		}
		indent := strings.Repeat("  ", depth+1)
		switch v := u.(type) {
		case *models.Folder:
			fmt.Fprintf(os.Stdout, "%s%s/\n", indent, v.Name())
		case *models.File:
			fmt.Fprintf(os.Stdout, "%s%s  [%s]\n", indent, v.FullName(), asset.KindOfFile(v))
		}
		return nil
	})
}

func init() {
	rootCmd.AddCommand(treeCmd)
}
