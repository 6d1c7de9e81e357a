package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"permscreen/adapters/permutation"
	"permscreen/adapters/rng"
	"permscreen/adapters/tabular"
	"permscreen/app"
	"permscreen/domain/stats"
	"permscreen/internal"
	"permscreen/internal/config"
	"permscreen/internal/simulation"
	"permscreen/ports"
)

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "permscreen",
		Short: "Permutation screening of labeled cohort outcomes",
	}

	rootCmd.AddCommand(
		newScreenCmd(),
		newCoinCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newScreenCmd() *cobra.Command {
	var (
		labelColumn   string
		categoryA     string
		categoryB     string
		outcomePrefix string
		permutations  int
		alpha         float64
		seed          int64
		workers       int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "screen [data-file]",
		Short: "Run a permutation screen over a CSV or XLSX cohort file",
		Long: `Screen every outcome column of a labeled cohort for group differences.

Example: permscreen screen cohort.csv --label-column "ER Status" \
  --category-a Positive --category-b Negative --outcome-prefix NP_ --seed 294`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("permutations") {
				permutations = cfg.Screen.NumPermutations
			}
			if !cmd.Flags().Changed("alpha") {
				alpha = cfg.Screen.Alpha
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Screen.Seed
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Screen.MaxWorkers
			}
			return runScreen(cmd.Context(), args[0], ports.CohortSpec{
				LabelColumn:   labelColumn,
				CategoryA:     categoryA,
				CategoryB:     categoryB,
				OutcomePrefix: outcomePrefix,
			}, permutations, alpha, seed, workers, asJSON)
		},
	}

	cmd.Flags().StringVar(&labelColumn, "label-column", "", "Column carrying the group category (required)")
	cmd.Flags().StringVar(&categoryA, "category-a", "", "Raw value mapped to group A (required)")
	cmd.Flags().StringVar(&categoryB, "category-b", "", "Raw value mapped to group B (required)")
	cmd.Flags().StringVar(&outcomePrefix, "outcome-prefix", "", "Prefix selecting outcome columns (required)")
	cmd.Flags().IntVar(&permutations, "permutations", 10000, "Number of label permutations")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.05, "Shortlist significance threshold")
	cmd.Flags().Int64Var(&seed, "seed", 294, "Random seed for deterministic screening")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent column workers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full screen result as JSON")
	cmd.MarkFlagRequired("label-column")
	cmd.MarkFlagRequired("outcome-prefix")
	cmd.MarkFlagRequired("category-a")
	cmd.MarkFlagRequired("category-b")

	return cmd
}

func runScreen(ctx context.Context, path string, spec ports.CohortSpec, permutations int, alpha float64, seed int64, workers int, asJSON bool) error {
	logger := internal.NewDefaultLogger()
	engine := permutation.NewEngine()
	engine.SetMaxWorkers(workers)

	service := app.NewScreenService(engine, tabular.NewCohortReader(), rng.NewSeededAdapter(), nil, logger)

	result, err := service.ScreenFile(ctx, app.ScreenRequest{
		Path:            path,
		Spec:            spec,
		NumPermutations: permutations,
		Alpha:           alpha,
		Seed:            seed,
	})
	if err != nil {
		return err
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	printScreen(result)
	return nil
}

func printScreen(result *stats.ScreenResult) {
	m := result.Manifest
	fmt.Printf("Screen %s\n", m.ScreenID)
	fmt.Printf("  cohort=%s seed=%d permutations=%d alpha=%g\n", m.CohortID, m.Seed, m.NumPermutations, m.Alpha)
	fmt.Printf("  %d columns tested, %d shortlisted in %dms\n\n", m.ColumnsTested, m.ShortlistCount, m.RuntimeMs)

	if len(result.Shortlist) == 0 {
		fmt.Println("No columns cleared the significance threshold.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIABLE\tOBSERVED\tP\tWELCH P")
	for _, entry := range result.Shortlist {
		fmt.Fprintf(w, "%s\t%+.4f\t%.4g\t%.4g\n", entry.Variable, entry.Observed, entry.PValue, entry.WelchP)
	}
	w.Flush()
}

func newCoinCmd() *cobra.Command {
	var (
		tosses    int
		probHeads float64
		draws     int
		seed      int64
		observed  float64
	)

	cmd := &cobra.Command{
		Use:   "coin",
		Short: "Simulate repeated coin-toss experiments and score an observed count",
		Long: `Draw repeated binomial experiments and report where an observed head
count falls in the simulated distribution.

Example: permscreen coin --tosses 100 --prob 0.5 --draws 10000 --observed 54`,
		RunE: func(cmd *cobra.Command, args []string) error {
			experiment := simulation.CoinExperiment{
				Tosses:    tosses,
				ProbHeads: probHeads,
				Draws:     draws,
			}
			outcome, err := experiment.Run(seed)
			if err != nil {
				return err
			}

			summary := outcome.Describe()
			fmt.Printf("Simulated %d experiments of %d tosses (p=%g, seed=%d)\n", draws, tosses, probHeads, seed)
			fmt.Printf("  heads: mean=%.2f sd=%.2f min=%g q25=%g median=%g q75=%g max=%g\n",
				summary.Mean, summary.StdDev, summary.Min, summary.Q25, summary.Median, summary.Q75, summary.Max)

			if cmd.Flags().Changed("observed") {
				fmt.Printf("  P(heads > %g) = %.4g\n", observed, outcome.PGreater(observed))
				fmt.Printf("  two-sided p for %g heads = %.4g\n", observed, outcome.PTwoSided(observed))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&tosses, "tosses", 100, "Tosses per experiment")
	cmd.Flags().Float64Var(&probHeads, "prob", 0.5, "Probability of heads")
	cmd.Flags().IntVar(&draws, "draws", 10000, "Number of simulated experiments")
	cmd.Flags().Int64Var(&seed, "seed", 294, "Random seed")
	cmd.Flags().Float64Var(&observed, "observed", 0, "Observed head count to score")

	return cmd
}
