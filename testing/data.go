package testing

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/invertedv/psm"
)

const (
	inTableCH = "testing.psm_survey"
	inTablePG = "public.psm_survey"

	pg   = "postgres"
	ch   = "clickhouse"
	file = "file"
)

// environment variables:
//   - host database IP address
//   - user database user
//   - password: database password
//   - db: Postgres database name

// list of sources to test; database sources are skipped without a host
func sources() []string {
	return []string{file, pg, ch}
}

var tongues = []string{"Bashkir", "Russian", "Tatar"}

// Linguistic generates n survey rows. Older speakers from small, high villages were more often interviewed
// indirectly; ITM rises with birth year and is higher for indirect interviews by effect.
func Linguistic(n int, seed int64, effect float64) (*psm.DF, error) {
	rnd := rand.New(rand.NewSource(seed))

	var (
		birth, pop, vpop, indirect []int
		elev, itm                  []float64
		tongue, res, sex, russian  []string
	)
	for ind := 0; ind < n; ind++ {
		by := 1920 + rnd.Intn(80)
		vp := 50 + rnd.Intn(3000)
		el := 100 + 900*rnd.Float64()
		r := "rural"
		if rnd.Float64() < 0.3 {
			r = "urban"
		}

		lin := -0.4 - 0.04*float64(by-1960) - 0.0004*float64(vp-1500) + 0.001*(el-550)
		tv := 0
		if rnd.Float64() < 1/(1+math.Exp(-lin)) {
			tv = 1
		}

		y := 2 + 0.02*float64(by-1920) + effect*float64(tv) + 0.5*rnd.NormFloat64()
		if rnd.Float64() < 0.03 {
			y = math.NaN()
		}

		ru := "no"
		pr := 1 / (1 + math.Exp(-(-1 + 0.03*float64(by-1960) + 0.8*b2f(r == "urban"))))
		if rnd.Float64() < pr {
			ru = "yes"
		}

		if rnd.Float64() < 0.02 {
			ru = ""
		}

		sx := "f"
		if rnd.Float64() < 0.45 {
			sx = "m"
		}

		birth = append(birth, by)
		pop = append(pop, vp+rnd.Intn(50000))
		vpop = append(vpop, vp)
		elev = append(elev, el)
		tongue = append(tongue, tongues[rnd.Intn(len(tongues))])
		res = append(res, r)
		sex = append(sex, sx)
		indirect = append(indirect, tv)
		itm = append(itm, y)
		russian = append(russian, ru)
	}

	cols := []struct {
		name string
		data any
		dt   psm.DataTypes
	}{
		{"birth_year", birth, psm.DTint},
		{"population", pop, psm.DTint},
		{"elevation", elev, psm.DTfloat},
		{"village_population", vpop, psm.DTint},
		{"mother_tongue", tongue, psm.DTstring},
		{"residence", res, psm.DTstring},
		{"sex", sex, psm.DTstring},
		{"indirect", indirect, psm.DTint},
		{"ITM", itm, psm.DTfloat},
		{"Russian", russian, psm.DTstring},
	}

	var out []*psm.Col
	for _, c := range cols {
		col, e := psm.NewCol(c.data, c.dt, psm.ColName(c.name))
		if e != nil {
			return nil, e
		}

		out = append(out, col)
	}

	return psm.NewDF(out...)
}

// WriteLinguistic writes Linguistic(n, seed, effect) to fileName as CSV.
func WriteLinguistic(fileName string, n int, seed int64, effect float64) error {
	var (
		df *psm.DF
		f  *psm.Files
		e  error
	)
	if df, e = Linguistic(n, seed, effect); e != nil {
		return e
	}

	if f, e = psm.NewFiles(); e != nil {
		return e
	}

	return f.Save(fileName, df)
}

// connect opens the database for source, or returns nil if the environment has no host.
func connect(source string) (*sql.DB, error) {
	host := os.Getenv("host")
	if host == "" {
		return nil, nil
	}

	user, password := os.Getenv("user"), os.Getenv("password")
	switch source {
	case ch:
		return psm.ConnectCH(host, user, password)
	case pg:
		return psm.ConnectPG(host, user, password, os.Getenv("db"))
	default:
		return nil, fmt.Errorf("unsupported data source %s", source)
	}
}

func inTable(source string) string {
	if source == ch {
		return inTableCH
	}

	return inTablePG
}

// loadData returns the survey data from source: a CSV written to dir, or a database table written from the
// same data. ok is false if the source is a database and no host is set.
func loadData(source, dir string, n int, seed int64) (df *psm.DF, ok bool, err error) {
	if source == file {
		fn := dir + "/survey.csv"
		if err = WriteLinguistic(fn, n, seed, 0.3); err != nil {
			return nil, false, err
		}

		df, err = psm.FileLoad(fn)
		return df, err == nil, err
	}

	var db *sql.DB
	if db, err = connect(source); err != nil || db == nil {
		return nil, false, err
	}

	var d *psm.Dialect
	if d, err = psm.NewDialect(source, db); err != nil {
		return nil, false, err
	}
	defer func() { _ = d.Close() }()

	var src *psm.DF
	if src, err = Linguistic(n, seed, 0.3); err != nil {
		return nil, false, err
	}

	ctx := context.Background()
	if err = d.Save(ctx, inTable(source), "birth_year", true, src); err != nil {
		return nil, false, err
	}

	df, err = d.Load(ctx, "SELECT * FROM "+inTable(source))

	return df, err == nil, err
}

func b2f(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
