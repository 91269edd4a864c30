// Package pipeline runs propensity score analyses described by a Config: load each data set, estimate
// propensity scores with a random forest, match, check balance, test the outcomes and draw the figures.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/invertedv/psm"
	"github.com/invertedv/psm/estimate"
	"github.com/invertedv/psm/forest"
	"github.com/invertedv/psm/match"
	"github.com/invertedv/psm/visual"
	"go.uber.org/zap"
)

// Analysis runs the data sets of a Config.
type Analysis struct {
	cfg     *Config
	log     *zap.Logger
	out     io.Writer
	runID   string
	connect func(dialect string) (*sql.DB, error)
}

type Opt func(a *Analysis) error

func WithLogger(l *zap.Logger) Opt {
	return func(a *Analysis) error {
		if l == nil {
			return fmt.Errorf("nil logger")
		}

		a.log = l
		return nil
	}
}

// WithOutput sets where reports are written. nil turns them off.
func WithOutput(w io.Writer) Opt {
	return func(a *Analysis) error {
		a.out = w
		return nil
	}
}

// WithConnector replaces the function that opens database connections.
func WithConnector(connect func(dialect string) (*sql.DB, error)) Opt {
	return func(a *Analysis) error {
		a.connect = connect
		return nil
	}
}

func New(cfg *Config, opts ...Opt) (*Analysis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	if e := cfg.Validate(); e != nil {
		return nil, e
	}

	a := &Analysis{cfg: cfg, log: zap.NewNop(), out: os.Stdout, runID: uuid.NewString(), connect: Connect}
	for _, o := range opts {
		if e := o(a); e != nil {
			return nil, e
		}
	}

	a.log = a.log.With(zap.String("run", a.runID))

	return a, nil
}

func (a *Analysis) RunID() string {
	return a.runID
}

// Connect opens a connection to ClickHouse or Postgres using the environment variables host, user,
// password and (Postgres only) db.
func Connect(dialect string) (*sql.DB, error) {
	d, e := psm.NewDialect(dialect, nil)
	if e != nil {
		return nil, e
	}

	host, user, password := os.Getenv("host"), os.Getenv("user"), os.Getenv("password")
	if d.DialectName() == "clickhouse" {
		return psm.ConnectCH(host, user, password)
	}

	return psm.ConnectPG(host, user, password, os.Getenv("db"))
}

// Result is the outcome of one data set.
type Result struct {
	Name    string
	Rows    int // rows loaded
	Dropped int // rows with a missing treatment or covariate

	Importance map[string]float64
	Match      *match.Result
	Summary    *match.Summary
	RawEffects []*estimate.Effect // all rows, unweighted
	Effects    []*estimate.Effect // matched rows, weighted
	Figures    []string
	SavedTo    []string
}

// Run analyzes each data set in turn and stops at the first failure.
func (a *Analysis) Run(ctx context.Context) ([]*Result, error) {
	var results []*Result
	for _, ds := range a.cfg.Datasets {
		if e := ctx.Err(); e != nil {
			return results, e
		}

		r, e := a.RunDataset(ctx, ds)
		if e != nil {
			a.log.Error("dataset failed", zap.String("dataset", ds.Name), zap.Error(e))
			return results, fmt.Errorf("dataset %s: %w", ds.Name, e)
		}

		if a.out != nil {
			Report(a.out, a.runID, r)
		}

		results = append(results, r)
	}

	return results, nil
}

// RunDataset analyzes one data set.
func (a *Analysis) RunDataset(ctx context.Context, ds Dataset) (*Result, error) {
	log := a.log.With(zap.String("dataset", ds.Name))
	res := &Result{Name: ds.Name}

	plotX := ds.PlotX
	if plotX == "" {
		plotX = a.cfg.Plot.X
	}

	log.Info("loading", zap.String("file", ds.File), zap.String("dialect", ds.Dialect))
	var (
		df *psm.DF
		e  error
	)
	if df, e = a.load(ctx, ds); e != nil {
		return nil, fmt.Errorf("load: %w", e)
	}

	if e = df.HasColumns(ds.columns(plotX)...); e != nil {
		return nil, fmt.Errorf("load: %w", e)
	}

	res.Rows = df.RowCount()

	var (
		data  *psm.DF
		treat []int
		X     [][]float64
	)
	if data, treat, X, e = prepare(df, ds.Treatment, ds.Covariates); e != nil {
		return nil, fmt.Errorf("prepare: %w", e)
	}

	res.Dropped = res.Rows - data.RowCount()
	log.Info("loaded", zap.Int("rows", res.Rows), zap.Int("dropped", res.Dropped))

	var score []float64
	if score, res.Importance, e = a.propensity(X, treat, ds.Covariates); e != nil {
		return nil, fmt.Errorf("propensity: %w", e)
	}

	log.Info("propensity fit", zap.Any("importance", res.Importance))

	if res.Match, e = a.match(data, ds.Treatment, score); e != nil {
		return nil, fmt.Errorf("match: %w", e)
	}

	if res.Summary, e = res.Match.Summary(ds.Covariates...); e != nil {
		return nil, fmt.Errorf("balance: %w", e)
	}

	sz := res.Summary.Sizes
	log.Info("matched",
		zap.Ints("matched", sz.Matched[:]),
		zap.Ints("unmatched", sz.Unmatched[:]),
		zap.Ints("discarded", sz.Discarded[:]),
		zap.Float64("maxAbsSMD", res.Summary.MaxAbsSMD()))

	for _, o := range ds.outcomes() {
		var raw, eff *estimate.Effect
		if raw, e = estimate.Estimate(data, ds.Treatment, "", o, a.cfg.Level); e != nil {
			return nil, fmt.Errorf("estimate all data: %w", e)
		}

		if eff, e = estimate.Estimate(res.Match.Data, ds.Treatment, match.WeightsCol, o, a.cfg.Level); e != nil {
			return nil, fmt.Errorf("estimate matched data: %w", e)
		}

		log.Info("effect", zap.String("outcome", o.Name), zap.String("kind", eff.Kind.String()),
			zap.Float64("estimate", eff.Estimate()), zap.Float64("p", eff.P()), zap.Int("dropped", eff.Dropped))

		res.RawEffects = append(res.RawEffects, raw)
		res.Effects = append(res.Effects, eff)
	}

	if plotX != "" {
		if res.Figures, e = a.figures(ds, plotX, data, res.Match.Data); e != nil {
			return nil, fmt.Errorf("plot: %w", e)
		}

		log.Info("figures", zap.Strings("files", res.Figures))
	}

	if res.SavedTo, e = a.save(ctx, ds, res.Match.Data); e != nil {
		return nil, fmt.Errorf("save: %w", e)
	}

	return res, nil
}

func (a *Analysis) load(ctx context.Context, ds Dataset) (*psm.DF, error) {
	if ds.File != "" {
		return psm.FileLoad(ds.File)
	}

	var (
		db *sql.DB
		d  *psm.Dialect
		e  error
	)
	if db, e = a.connect(ds.Dialect); e != nil {
		return nil, e
	}

	if d, e = psm.NewDialect(ds.Dialect, db); e != nil {
		_ = db.Close()
		return nil, e
	}
	defer func() { _ = d.Close() }()

	return d.Load(ctx, ds.Query)
}

// prepare drops rows missing the treatment or a covariate and builds the covariate matrix. String
// covariates are replaced by the codes of their levels.
func prepare(df *psm.DF, treatment string, covariates []string) (data *psm.DF, treat []int, X [][]float64, err error) {
	var rows []int
	if rows, err = df.Complete(append([]string{treatment}, covariates...)...); err != nil {
		return nil, nil, nil, err
	}

	if data, err = df.Subset(rows); err != nil {
		return nil, nil, nil, err
	}

	if data.RowCount() == 0 {
		return nil, nil, nil, fmt.Errorf("no complete rows")
	}

	if treat, err = data.Int(treatment); err != nil {
		return nil, nil, nil, fmt.Errorf("treatment %s: %w", treatment, err)
	}

	for row, tv := range treat {
		if tv != 0 && tv != 1 {
			return nil, nil, nil, fmt.Errorf("treatment %s must be 0 or 1, got %d at row %d", treatment, tv, row)
		}
	}

	X = make([][]float64, data.RowCount())
	for row := range X {
		X[row] = make([]float64, len(covariates))
	}

	for j, cn := range covariates {
		col, _ := data.Column(cn)

		var x []float64
		switch col.DataType() {
		case psm.DTdate:
			return nil, nil, nil, fmt.Errorf("covariate %s is a date", cn)
		case psm.DTstring:
			codes, _, _ := data.Categorical(cn)
			for _, c := range codes {
				x = append(x, float64(c))
			}
		default:
			x = col.AsFloat()
		}

		for row, xv := range x {
			X[row][j] = xv
		}
	}

	return data, treat, X, nil
}

func (a *Analysis) propensity(X [][]float64, treat []int, covariates []string) (score []float64, importance map[string]float64, err error) {
	fc := a.cfg.Forest
	opts := []forest.Option{
		forest.WithSeed(a.cfg.Seed),
		forest.WithMaxDepth(fc.MaxDepth),
		forest.WithMaxFeatures(fc.MaxFeatures),
	}

	if fc.Trees > 0 {
		opts = append(opts, forest.WithNEstimators(fc.Trees))
	}

	if fc.MinLeaf > 0 {
		opts = append(opts, forest.WithMinSamplesLeaf(fc.MinLeaf))
	}

	var f *forest.Forest
	if f, err = forest.New(opts...); err != nil {
		return nil, nil, err
	}

	if err = f.Fit(X, treat); err != nil {
		return nil, nil, err
	}

	if fc.OOB {
		score, err = f.OOBProba(X)
	} else {
		score, err = f.PredictProba(X)
	}

	if err != nil {
		return nil, nil, err
	}

	importance = make(map[string]float64)
	for j, v := range f.Importance() {
		importance[covariates[j]] = v
	}

	return score, importance, nil
}

func (a *Analysis) match(data *psm.DF, treatment string, score []float64) (*match.Result, error) {
	mc := a.cfg.Match
	discard, _ := match.ParseDiscard(mc.Discard)
	order, _ := match.ParseOrder(mc.Order)

	opts := []match.Opt{
		match.WithDiscard(discard),
		match.WithOrder(order),
		match.WithReplace(mc.Replace),
		match.WithCaliper(mc.Caliper),
		match.WithSeed(a.cfg.Seed),
	}

	if mc.Ratio > 0 {
		opts = append(opts, match.WithRatio(mc.Ratio))
	}

	m, e := match.NewMatcher(opts...)
	if e != nil {
		return nil, e
	}

	return m.MatchDF(data, treatment, score)
}

// figures draws, for each outcome, the bin means of all data next to those of the matched data.
func (a *Analysis) figures(ds Dataset, plotX string, data, matched *psm.DF) ([]string, error) {
	pc := a.cfg.Plot
	var files []string
	for _, o := range ds.outcomes() {
		p, e := visual.New(
			visual.WithBinWidth(pc.BinWidth),
			visual.WithSpan(pc.Span),
			visual.WithDegree(pc.Degree),
			visual.WithSize(pc.Width, pc.Height),
			visual.WithLabels(plotX, o.Name),
			visual.WithGroupNames("direct", "indirect"))
		if e != nil {
			return nil, e
		}

		var raw, mtch *visual.Panel
		if raw, e = panel(p, "all data", data, ds.Treatment, "", plotX, o); e != nil {
			return nil, e
		}

		if mtch, e = panel(p, "matched data", matched, ds.Treatment, match.WeightsCol, plotX, o); e != nil {
			return nil, e
		}

		base := filepath.Join(a.cfg.OutDir, fileName(ds.Name, o.Name, a.runID[:8]))
		if e = p.SideBySide(base+".png", raw, mtch); e != nil {
			return nil, e
		}

		files = append(files, base+".png")
		if !pc.HTML {
			continue
		}

		for _, pnl := range []*visual.Panel{raw, mtch} {
			fn := base + "_" + fileName(pnl.Title) + ".html"
			if e = p.Interactive(fn, pnl); e != nil {
				return nil, e
			}

			files = append(files, fn)
		}
	}

	return files, nil
}

func panel(p *visual.Plotter, title string, df *psm.DF, treatment, weights, plotX string, o estimate.Outcome) (*visual.Panel, error) {
	var (
		x, y, w []float64
		treat   []int
		e       error
	)
	if x, e = df.Float(plotX); e != nil {
		return nil, e
	}

	if _, y, _, e = o.Resolve(df); e != nil {
		return nil, e
	}

	if treat, e = df.Int(treatment); e != nil {
		return nil, e
	}

	if weights != "" {
		if w, e = df.Float(weights); e != nil {
			return nil, e
		}
	}

	return p.Panel(title, x, y, treat, w)
}

// save writes the matched data to a CSV in the output directory and/or a database table.
func (a *Analysis) save(ctx context.Context, ds Dataset, matched *psm.DF) ([]string, error) {
	var saved []string
	if a.cfg.SaveMatched {
		fn := filepath.Join(a.cfg.OutDir, fileName(ds.Name, "matched", a.runID[:8])+".csv")
		f, e := psm.NewFiles()
		if e != nil {
			return nil, e
		}

		if e = f.Save(fn, matched); e != nil {
			return nil, e
		}

		saved = append(saved, fn)
	}

	if ds.SaveTable == "" {
		return saved, nil
	}

	db, e := a.connect(ds.Dialect)
	if e != nil {
		return nil, e
	}

	d, e := psm.NewDialect(ds.Dialect, db)
	if e != nil {
		_ = db.Close()
		return nil, e
	}
	defer func() { _ = d.Close() }()

	if e = d.Save(ctx, ds.SaveTable, match.SubclassCol, true, matched); e != nil {
		return nil, e
	}

	return append(saved, ds.SaveTable), nil
}
