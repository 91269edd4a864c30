package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/invertedv/psm/pipeline"
	survey "github.com/invertedv/psm/testing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "v0.1.0"

var (
	verbose    bool
	configPath string

	file       string
	treatment  string
	covariates []string
	outcomes   []string
	plotX      string
	outDir     string
	seed       int64
	trees      int
	discard    string
	order      string
	ratio      int
	replace    bool
	caliper    float64

	rows   int
	effect float64

	rootCmd = &cobra.Command{
		Use:           "psm",
		Short:         "Propensity score matching with random forest scores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the analyses described by a YAML config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, e := pipeline.LoadConfig(configPath)
			if e != nil {
				return e
			}

			return analyze(cmd, cfg)
		},
	}

	matchCmd = &cobra.Command{
		Use:   "match",
		Short: "Match one CSV file given on the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, e := flagConfig(file)
			if e != nil {
				return e
			}

			return analyze(cmd, cfg)
		},
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Generate a synthetic survey of direct and indirect interviews and match it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if e := os.MkdirAll(outDir, 0o755); e != nil {
				return e
			}

			fn := filepath.Join(outDir, "survey.csv")
			if e := survey.WriteLinguistic(fn, rows, seed, effect); e != nil {
				return e
			}

			_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "wrote %s\n", fn)

			if treatment == "" {
				treatment = "indirect"
			}

			if len(covariates) == 0 {
				covariates = []string{"birth_year", "village_population", "elevation", "residence", "mother_tongue", "sex"}
			}

			if len(outcomes) == 0 {
				outcomes = []string{"ITM", "Russian:yes"}
			}

			if plotX == "" {
				plotX = "birth_year"
			}

			cfg, e := flagConfig(fn)
			if e != nil {
				return e
			}

			return analyze(cmd, cfg)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "psm", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	runCmd.Flags().StringVarP(&configPath, "config", "c", "psm.yaml", "YAML config file")

	for _, c := range []*cobra.Command{matchCmd, demoCmd} {
		fs := c.Flags()
		fs.StringVarP(&treatment, "treatment", "t", "", "0/1 treatment column")
		fs.StringSliceVarP(&covariates, "covariates", "x", nil, "covariates of the propensity model")
		fs.StringSliceVarP(&outcomes, "outcomes", "y", nil, "outcome columns; name:level tests a string outcome for level")
		fs.StringVar(&plotX, "plot-x", "", "x axis of the outcome figures, none if empty")
		fs.StringVarP(&outDir, "out", "o", ".", "output directory")
		fs.Int64Var(&seed, "seed", 1, "random number seed")
		fs.IntVar(&trees, "trees", 500, "trees in the forest")
		fs.StringVar(&discard, "discard", "both", "none, both, treated or control")
		fs.StringVar(&order, "order", "largest", "largest, smallest, data or random")
		fs.IntVar(&ratio, "ratio", 1, "controls per treated unit")
		fs.BoolVar(&replace, "replace", false, "match controls with replacement")
		fs.Float64Var(&caliper, "caliper", 0, "caliper in standard deviations of the score, 0 for none")
	}

	matchCmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to match")
	_ = matchCmd.MarkFlagRequired("file")
	_ = matchCmd.MarkFlagRequired("treatment")
	_ = matchCmd.MarkFlagRequired("covariates")

	demoCmd.Flags().IntVar(&rows, "rows", 2000, "rows to generate")
	demoCmd.Flags().Float64Var(&effect, "effect", 0.3, "effect of indirect interviews on ITM")

	rootCmd.AddCommand(runCmd, matchCmd, demoCmd, versionCmd)
}

// flagConfig builds a one data set config from the flags.
func flagConfig(fileName string) (*pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	cfg.Seed = seed
	cfg.OutDir = outDir
	cfg.SaveMatched = true
	cfg.Forest.Trees = trees
	cfg.Match = pipeline.MatchConfig{Discard: discard, Order: order, Ratio: ratio, Replace: replace, Caliper: caliper}
	cfg.Plot.X = plotX

	ds := pipeline.Dataset{
		Name:       strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName)),
		File:       fileName,
		Treatment:  treatment,
		Covariates: covariates,
	}

	for _, o := range outcomes {
		name, level, _ := strings.Cut(o, ":")
		oc := pipeline.OutcomeConfig{Name: name, Positive: level}
		if level != "" {
			oc.Kind = "binary"
		}

		ds.Outcomes = append(ds.Outcomes, oc)
	}

	cfg.Datasets = []pipeline.Dataset{ds}

	return cfg, cfg.Validate()
}

func analyze(cmd *cobra.Command, cfg *pipeline.Config) error {
	var (
		logger *zap.Logger
		e      error
	)
	if verbose {
		logger, e = zap.NewDevelopment()
	} else {
		logger, e = zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
	}

	if e != nil {
		return e
	}
	defer func() { _ = logger.Sync() }()

	if e = os.MkdirAll(cfg.OutDir, 0o755); e != nil {
		return e
	}

	a, e := pipeline.New(cfg, pipeline.WithLogger(logger), pipeline.WithOutput(cmd.OutOrStdout()))
	if e != nil {
		return e
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, e = a.Run(ctx)

	return e
}
