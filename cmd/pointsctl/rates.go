package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/watchpoints/points-engine/internal/app"
	"github.com/watchpoints/points-engine/internal/rates"
	"github.com/watchpoints/points-engine/pkg/enums"
)

func init() {
	rootCmd.AddCommand(ratesCmd)
	ratesCmd.AddCommand(ratesQuoteCmd)

	ratesCmd.Flags().Bool("toml", false, "print the table as a rate file")

	ratesQuoteCmd.Flags().String("category", "", "content category")
	ratesQuoteCmd.Flags().Float64("seconds", 0, "watch duration in seconds")
	ratesQuoteCmd.Flags().String("tier", string(enums.UserTierNone), "verification tier: NONE, PENDING or VERIFIED")
	_ = ratesQuoteCmd.MarkFlagRequired("category")
	_ = ratesQuoteCmd.MarkFlagRequired("seconds")
}

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Print the active rate table",
	Args:  cobra.NoArgs,
	RunE:  runRates,
}

var ratesQuoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Compute the points a watch event would earn",
	Args:  cobra.NoArgs,
	RunE:  runRatesQuote,
}

func activeModel() (*rates.Model, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.RateModel(cfg.Ledger)
}

func runRates(cmd *cobra.Command, _ []string) error {
	model, err := activeModel()
	if err != nil {
		return err
	}
	table := model.Table()

	if asTOML, _ := cmd.Flags().GetBool("toml"); asTOML {
		return rates.Encode(cmd.OutOrStdout(), table)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "window\t%ds\n", table.WindowSeconds)
	fmt.Fprintf(tw, "minimum\t%ds\n", table.MinWatchSeconds)
	fmt.Fprintf(tw, "default\t%d\n", table.DefaultRate)
	for _, category := range slices.Sorted(maps.Keys(table.BaseRates)) {
		fmt.Fprintf(tw, "%s\t%d\n", category, table.BaseRates[category])
	}
	return tw.Flush()
}

func runRatesQuote(cmd *cobra.Command, _ []string) error {
	rawCategory, _ := cmd.Flags().GetString("category")
	seconds, _ := cmd.Flags().GetFloat64("seconds")
	rawTier, _ := cmd.Flags().GetString("tier")

	tier, err := enums.ParseUserTier(rawTier)
	if err != nil {
		return err
	}
	model, err := activeModel()
	if err != nil {
		return err
	}

	category := enums.NormalizeContentCategory(rawCategory)
	multiplier := rates.MultiplierForTier(tier)
	points, err := model.ComputeEarnedPoints(category, seconds, multiplier)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d points (%s x%d, base rate %d)\n", points, category, multiplier, model.BaseRate(category))
	return nil
}
