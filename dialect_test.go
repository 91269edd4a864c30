package psm

import (
	"context"
	"database/sql"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// environment variables:
//   - host database IP address
//   - user database user
//   - password: database password
//   - db: Postgres database name

func TestDialect_CreateSQL(t *testing.T) {
	d, e := NewDialect("ClickHouse", nil)
	require.Nil(t, e)
	create, e1 := d.CreateSQL("tmp.psm", "", []string{"x", "y"}, []DataTypes{DTfloat, DTstring})
	assert.Nil(t, e1)
	assert.Equal(t, "CREATE TABLE tmp.psm (x Float64,y String) ENGINE = MergeTree() ORDER BY (x)", create)

	p, _ := NewDialect("postgres", nil)
	create, e1 = p.CreateSQL("public.psm", "", []string{"x", "d"}, []DataTypes{DTint, DTdate})
	assert.Nil(t, e1)
	assert.Equal(t, "CREATE TABLE public.psm (x bigint,d date)", create)

	_, e2 := p.CreateSQL("public.psm", "", []string{"x"}, nil)
	assert.NotNil(t, e2)

	assert.Equal(t, 1, p.BufSize())
	p.SetBufSize(8)
	assert.Equal(t, 8, p.BufSize())

	_, e3 := NewDialect("oracle", nil)
	assert.NotNil(t, e3)
}

func TestDialect_ToString(t *testing.T) {
	d, _ := NewDialect("postgres", nil)
	assert.Equal(t, "'O''Brien'", d.ToString("O'Brien"))
	assert.Equal(t, "2.5", d.ToString(2.5))
	assert.Equal(t, "NULL", d.ToString(math.NaN()))
	assert.Equal(t, "3", d.ToString(3))
	assert.Equal(t, "'2024-01-02'", d.ToString(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestToVector(t *testing.T) {
	v, e := toVector([]any{int64(1), nil, int64(3)})
	assert.Nil(t, e)
	assert.Equal(t, DTfloat, v.VectorType())
	assert.True(t, math.IsNaN(v.AsFloat()[1]))

	v, e = toVector([]any{"a", "b"})
	assert.Nil(t, e)
	assert.Equal(t, []string{"a", "b"}, v.AsAny())

	_, e = toVector([]any{struct{}{}})
	assert.NotNil(t, e)
}

func TestDialect_RoundTrip(t *testing.T) {
	host := os.Getenv("host")
	if host == "" {
		t.Skip("host not set")
	}

	var (
		db *sql.DB
		e  error
	)
	if db, e = ConnectPG(host, os.Getenv("user"), os.Getenv("password"), os.Getenv("db")); e != nil {
		t.Skip("no postgres: ", e)
	}

	d, _ := NewDialect(pg, db)
	defer func() { _ = d.Close() }()

	ctx := context.Background()
	dfx := testDF()
	require.Nil(t, d.Save(ctx, "public.psm_test", "", true, dfx))

	dfy, e1 := d.Load(ctx, "SELECT * FROM public.psm_test")
	require.Nil(t, e1)
	assert.Equal(t, dfx.RowCount(), dfy.RowCount())
	y, _ := dfy.Int("y")
	assert.Equal(t, []int{1, -5, 6, 1, 4, 5}, y)

	exists, _ := d.Exists(ctx, "public.psm_test")
	assert.True(t, exists)
	assert.Nil(t, d.DropTable(ctx, "public.psm_test"))
}
