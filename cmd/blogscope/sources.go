package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/sources"
	"github.com/IshaanNene/blogscope/internal/types"
)

// sourcesCmd creates the "sources" subcommand.
func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			catalog := sources.DefaultCatalog()
			if cfg.Sources.CatalogPath != "" {
				if catalog, err = sources.LoadCatalog(cfg.Sources.CatalogPath); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTRATEGY\tHOMEPAGE")
			for _, src := range catalog.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", src.ID, src.Name, strategyOf(src), src.Homepage)
			}
			return tw.Flush()
		},
	}
}

// strategyOf names the strategy the dispatcher will pick, without building
// adapters.
func strategyOf(src types.Source) string {
	switch {
	case src.Adapter != "" && src.Adapter != sources.KindRSS && src.Adapter != sources.KindHTML:
		return src.Adapter
	case src.RSS != "" && src.Adapter != sources.KindHTML:
		return sources.KindRSS
	case src.AllowScrape && src.BlogListURL != "":
		return sources.KindHTML
	}
	return "none"
}
