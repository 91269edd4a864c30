package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/invertedv/psm/estimate"
	"github.com/invertedv/psm/match"
	"gopkg.in/yaml.v3"
)

// Config is the analysis read from YAML.
type Config struct {
	Seed        int64        `yaml:"seed"`
	Level       float64      `yaml:"level"`
	OutDir      string       `yaml:"out_dir"`
	SaveMatched bool         `yaml:"save_matched"`
	Forest      ForestConfig `yaml:"forest"`
	Match       MatchConfig  `yaml:"match"`
	Plot        PlotConfig   `yaml:"plot"`
	Datasets    []Dataset    `yaml:"datasets"`
}

type ForestConfig struct {
	Trees       int  `yaml:"trees"`
	MaxDepth    int  `yaml:"max_depth"`
	MinLeaf     int  `yaml:"min_leaf"`
	MaxFeatures int  `yaml:"max_features"`
	OOB         bool `yaml:"oob"` // score rows with the trees that did not see them
}

type MatchConfig struct {
	Discard string  `yaml:"discard"`
	Order   string  `yaml:"order"`
	Ratio   int     `yaml:"ratio"`
	Replace bool    `yaml:"replace"`
	Caliper float64 `yaml:"caliper"`
}

type PlotConfig struct {
	X        string  `yaml:"x"`
	BinWidth float64 `yaml:"bin_width"`
	Span     float64 `yaml:"span"`
	Degree   int     `yaml:"degree"`
	Width    float64 `yaml:"width"`  // inches, one panel
	Height   float64 `yaml:"height"` // inches
	HTML     bool    `yaml:"html"`
}

// Dataset is one data set to analyze. It is read from File or, if File is empty, by running Query against
// a database of the given Dialect.
type Dataset struct {
	Name       string          `yaml:"name"`
	File       string          `yaml:"file"`
	Query      string          `yaml:"query"`
	Dialect    string          `yaml:"dialect"`
	SaveTable  string          `yaml:"save_table"`
	Treatment  string          `yaml:"treatment"`
	Outcomes   []OutcomeConfig `yaml:"outcomes"`
	Covariates []string        `yaml:"covariates"`
	PlotX      string          `yaml:"plot_x"`
}

type OutcomeConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Positive string `yaml:"positive"`
}

func DefaultConfig() *Config {
	return &Config{
		Seed:   1,
		Level:  0.95,
		OutDir: ".",
		Forest: ForestConfig{Trees: 500, MinLeaf: 1, OOB: true},
		Match:  MatchConfig{Discard: "both", Order: "largest", Ratio: 1},
		Plot:   PlotConfig{BinWidth: 5, Span: 0.75, Degree: 2, Width: 5, Height: 4},
	}
}

// LoadConfig reads the YAML file at path over the defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	var (
		data []byte
		e    error
	)
	if data, e = os.ReadFile(path); e != nil {
		return nil, fmt.Errorf("read config: %w", e)
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if e := yaml.Unmarshal(data, cfg); e != nil {
		return nil, fmt.Errorf("parse config: %w", e)
	}

	if e := cfg.Validate(); e != nil {
		return nil, e
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if !(c.Level > 0 && c.Level < 1) {
		return fmt.Errorf("config: level must be in (0,1), got %v", c.Level)
	}

	if _, e := match.ParseDiscard(c.Match.Discard); e != nil {
		return fmt.Errorf("config: %w", e)
	}

	if _, e := match.ParseOrder(c.Match.Order); e != nil {
		return fmt.Errorf("config: %w", e)
	}

	if len(c.Datasets) == 0 {
		return fmt.Errorf("config: no datasets")
	}

	seen := make(map[string]bool)
	for ind, ds := range c.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("config: dataset %d has no name", ind)
		}

		if seen[ds.Name] {
			return fmt.Errorf("config: dataset %s appears twice", ds.Name)
		}

		seen[ds.Name] = true

		if e := ds.Validate(); e != nil {
			return fmt.Errorf("config: dataset %s: %w", ds.Name, e)
		}
	}

	return nil
}

func (ds *Dataset) Validate() error {
	switch {
	case ds.File == "" && ds.Query == "":
		return fmt.Errorf("need a file or a query")
	case ds.File != "" && ds.Query != "":
		return fmt.Errorf("give a file or a query, not both")
	case (ds.Query != "" || ds.SaveTable != "") && ds.Dialect == "":
		return fmt.Errorf("a query or save_table needs a dialect")
	}

	if ds.Treatment == "" {
		return fmt.Errorf("no treatment column")
	}

	if len(ds.Covariates) == 0 {
		return fmt.Errorf("no covariates")
	}

	for _, o := range ds.Outcomes {
		if _, e := estimate.ParseKind(o.Kind); e != nil {
			return e
		}
	}

	return nil
}

// outcomes converts the configured outcomes.
func (ds *Dataset) outcomes() []estimate.Outcome {
	var out []estimate.Outcome
	for _, o := range ds.Outcomes {
		k, _ := estimate.ParseKind(o.Kind)
		out = append(out, estimate.Outcome{Name: o.Name, Kind: k, Positive: o.Positive})
	}

	return out
}

// columns returns every column the dataset uses.
func (ds *Dataset) columns(plotX string) []string {
	cols := append([]string{ds.Treatment}, ds.Covariates...)
	for _, o := range ds.Outcomes {
		cols = append(cols, o.Name)
	}

	if plotX != "" {
		cols = append(cols, plotX)
	}

	return cols
}

// fileName makes a file name from the dataset name.
func fileName(parts ...string) string {
	s := strings.Join(parts, "_")
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>| `, r) {
			return '_'
		}

		return r
	}, s)
}
