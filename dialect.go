package psm

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/stdlib"
)

// All code interacting with a database is here

const (
	ch = "clickhouse"
	pg = "postgres"
)

const (
	chCreate = "CREATE TABLE ?TableName (?fields) ENGINE = MergeTree() ORDER BY (?OrderBy)"
	pgCreate = "CREATE TABLE ?TableName (?fields)"
	chDropIf = "DROP TABLE IF EXISTS ?TableName"
	pgDropIf = "DROP TABLE IF EXISTS ?TableName"
	chFields = "?Field ?Type"
	pgFields = "?Field ?Type"
)

var (
	chTypes = map[DataTypes]string{DTfloat: "Float64", DTint: "Int64", DTstring: "String", DTdate: "Date"}
	pgTypes = map[DataTypes]string{DTfloat: "double precision", DTint: "bigint", DTstring: "text", DTdate: "date"}
)

// Dialect holds a database connection and the SQL particular to that database.
type Dialect struct {
	db      *sql.DB
	dialect string

	create string
	dropIf string
	fields string
	types  map[DataTypes]string

	bufSize int // in MB
}

func NewDialect(dialect string, db *sql.DB) (*Dialect, error) {
	dialect = strings.ToLower(dialect)

	d := &Dialect{db: db, dialect: dialect, bufSize: 1}

	switch d.dialect {
	case ch:
		d.create, d.fields, d.dropIf, d.types = chCreate, chFields, chDropIf, chTypes
	case pg:
		d.create, d.fields, d.dropIf, d.types = pgCreate, pgFields, pgDropIf, pgTypes
	default:
		return nil, fmt.Errorf("no skeletons for database %s", dialect)
	}

	return d, nil
}

// ConnectCH establishes a new connection to ClickHouse. host is the IP address (assumes port 9000).
func ConnectCH(host, user, password string) (*sql.DB, error) {
	db := clickhouse.OpenDB(
		&clickhouse.Options{
			Addr: []string{host + ":9000"},
			Auth: clickhouse.Auth{
				Database: "default",
				Username: user,
				Password: password,
			},
			DialTimeout: 300 * time.Second,
			Compression: &clickhouse.Compression{
				Method: clickhouse.CompressionLZ4,
				Level:  0,
			},
		})

	if e := db.Ping(); e != nil {
		return nil, e
	}

	return db, nil
}

// ConnectPG establishes a new connection to Postgres on port 5432.
func ConnectPG(host, user, password, dbName string) (*sql.DB, error) {
	connectionStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s", user, password, host, dbName)
	var (
		db *sql.DB
		e  error
	)
	if db, e = sql.Open("pgx", connectionStr); e != nil {
		return nil, e
	}

	if e := db.Ping(); e != nil {
		return nil, e
	}

	return db, nil
}

// ***************** Methods *****************

func (d *Dialect) DB() *sql.DB {
	return d.db
}

func (d *Dialect) DialectName() string {
	return d.dialect
}

func (d *Dialect) BufSize() int {
	return d.bufSize
}

func (d *Dialect) SetBufSize(mb int) {
	d.bufSize = mb
}

func (d *Dialect) Close() error {
	return d.db.Close()
}

// Load runs qry and returns the result as a DF. NULLs become NaN for numeric fields and "" for strings;
// an integer field with NULLs is returned as float.
func (d *Dialect) Load(ctx context.Context, qry string) (*DF, error) {
	var (
		rows *sql.Rows
		e    error
	)
	if rows, e = d.db.QueryContext(ctx, qry); e != nil {
		return nil, e
	}
	defer func() { _ = rows.Close() }()

	var (
		ct []*sql.ColumnType
		e1 error
	)
	if ct, e1 = rows.ColumnTypes(); e1 != nil {
		return nil, e1
	}

	row2read := make([]any, len(ct))
	for ind := 0; ind < len(ct); ind++ {
		var x any
		row2read[ind] = &x
	}

	data := make([][]any, len(ct))
	for rows.Next() {
		if e2 := rows.Scan(row2read...); e2 != nil {
			return nil, e2
		}

		for ind := 0; ind < len(ct); ind++ {
			data[ind] = append(data[ind], deref(*row2read[ind].(*any)))
		}
	}

	if e3 := rows.Err(); e3 != nil {
		return nil, e3
	}

	var cols []*Col
	for ind := 0; ind < len(ct); ind++ {
		var (
			v  *Vector
			e4 error
		)
		if v, e4 = toVector(data[ind]); e4 != nil {
			return nil, fmt.Errorf("field %s: %w", ct[ind].Name(), e4)
		}

		var (
			col *Col
			e5  error
		)
		if col, e5 = NewCol(v, v.VectorType(), ColName(cleanName(ct[ind].Name()))); e5 != nil {
			return nil, e5
		}

		cols = append(cols, col)
	}

	return NewDF(cols...)
}

// Save writes df to tableName, replacing the table if overwrite is true.
func (d *Dialect) Save(ctx context.Context, tableName, orderBy string, overwrite bool, df *DF) error {
	if !overwrite {
		exists, e := d.Exists(ctx, tableName)
		if e != nil {
			return e
		}

		if exists {
			return fmt.Errorf("table %s exists", tableName)
		}
	}

	if e := d.DropTable(ctx, tableName); e != nil {
		return e
	}

	var (
		create string
		e      error
	)
	if create, e = d.CreateSQL(tableName, orderBy, df.ColumnNames(), df.ColumnTypes()); e != nil {
		return e
	}

	if _, e1 := d.db.ExecContext(ctx, create); e1 != nil {
		return e1
	}

	return d.IterSave(ctx, tableName, df)
}

// CreateSQL builds the CREATE TABLE statement for the fields and types given.
func (d *Dialect) CreateSQL(tableName, orderBy string, fields []string, types []DataTypes) (string, error) {
	if len(fields) == 0 || len(fields) != len(types) {
		return "", fmt.Errorf("need matching non-empty fields and types in CreateSQL")
	}

	if orderBy == "" {
		orderBy = fields[0]
	}

	create := strings.ReplaceAll(d.create, "?TableName", tableName)
	create = strings.Replace(create, "?OrderBy", orderBy, 1)

	var flds []string
	for ind := 0; ind < len(fields); ind++ {
		var (
			dbType string
			ex     error
		)
		if dbType, ex = d.dbtype(types[ind]); ex != nil {
			return "", ex
		}

		field := strings.ReplaceAll(d.fields, "?Field", fields[ind])
		field = strings.ReplaceAll(field, "?Type", dbType)
		flds = append(flds, field)
	}

	create = strings.Replace(create, "?fields", strings.Join(flds, ","), 1)

	if strings.Contains(create, "?") {
		return "", fmt.Errorf("create still has placeholders: %s", create)
	}

	return create, nil
}

func (d *Dialect) DropTable(ctx context.Context, tableName string) error {
	qry := strings.ReplaceAll(d.dropIf, "?TableName", tableName)
	_, e := d.db.ExecContext(ctx, qry)

	return e
}

func (d *Dialect) Exists(ctx context.Context, tableName string) (bool, error) {
	var qry string
	switch d.dialect {
	case ch:
		qry = fmt.Sprintf("EXISTS TABLE %s", tableName)
	case pg:
		qry = fmt.Sprintf("SELECT to_regclass('%s') IS NOT NULL", tableName)
	}

	var exist any
	if e := d.db.QueryRowContext(ctx, qry).Scan(&exist); e != nil {
		return false, e
	}

	switch x := exist.(type) {
	case bool:
		return x, nil
	case uint8:
		return x == 1, nil
	default:
		return false, fmt.Errorf("unexpected result %v from %s", exist, qry)
	}
}

// IterSave inserts the rows of df into tableName, flushing every BufSize MB.
func (d *Dialect) IterSave(ctx context.Context, tableName string, df *DF) error {
	const (
		bSep   = byte(',')
		bOpen  = byte('(')
		bClose = byte(')')
	)

	var buffer []byte
	bsize := d.bufSize * 1024 * 1024

	for row := 0; row < df.RowCount(); row++ {
		if buffer != nil {
			buffer = append(buffer, bSep)
		}

		buffer = append(buffer, bOpen)
		for c := df.Next(true); c != nil; c = df.Next(false) {
			buffer = append(append(buffer, []byte(d.ToString(c.Element(row)))...), bSep)
		}

		buffer[len(buffer)-1] = bClose

		if bsize > 0 && len(buffer) >= bsize {
			if e := d.InsertValues(ctx, tableName, df.ColumnNames(), buffer); e != nil {
				return e
			}

			buffer = nil
		}
	}

	if buffer != nil {
		if e := d.InsertValues(ctx, tableName, df.ColumnNames(), buffer); e != nil {
			return e
		}
	}

	return nil
}

func (d *Dialect) InsertValues(ctx context.Context, tableName string, fields []string, values []byte) error {
	qry := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", tableName, strings.Join(fields, ","), string(values))
	_, e := d.db.ExecContext(ctx, qry)

	return e
}

// ToString renders val as a SQL literal.
func (d *Dialect) ToString(val any) string {
	if f, ok := val.(float64); ok && math.IsNaN(f) {
		return "NULL"
	}

	var (
		xv any
		ok bool
	)
	if xv, ok = toString(val); !ok {
		panic(fmt.Errorf("can't make string"))
	}

	x := xv.(string)
	if WhatAmI(val) == DTdate || WhatAmI(val) == DTstring {
		x = fmt.Sprintf("'%s'", strings.ReplaceAll(x, "'", "''"))
	}

	return x
}

func (d *Dialect) dbtype(dt DataTypes) (string, error) {
	dbType, ok := d.types[dt]
	if !ok {
		return "", fmt.Errorf("cannot find type %s to map to DB type", dt.String())
	}

	return dbType, nil
}

// ***************** Helpers *****************

func deref(x any) any {
	switch v := x.(type) {
	case *int:
		if v == nil {
			return nil
		}
		return *v
	case *int64:
		if v == nil {
			return nil
		}
		return *v
	case *int32:
		if v == nil {
			return nil
		}
		return *v
	case *float64:
		if v == nil {
			return nil
		}
		return *v
	case *float32:
		if v == nil {
			return nil
		}
		return *v
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	case []byte:
		return string(v)
	default:
		return x
	}
}

// toVector picks the column type from the first non-NULL value.
func toVector(vals []any) (*Vector, error) {
	dt := DTunknown
	hasNull := false
	for _, x := range vals {
		if x == nil {
			hasNull = true
			continue
		}

		if dt != DTunknown {
			continue
		}

		switch x.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			dt = DTint
		case float32, float64:
			dt = DTfloat
		case string:
			dt = DTstring
		case time.Time:
			dt = DTdate
		default:
			return nil, fmt.Errorf("unsupported database type %T", x)
		}
	}

	switch {
	case dt == DTunknown:
		dt = DTstring
	case dt == DTint && hasNull:
		dt = DTfloat
	}

	v := MakeVector(dt, len(vals))
	for ind, x := range vals {
		if x == nil {
			switch dt {
			case DTfloat:
				v.SetFloat(math.NaN(), ind)
			case DTstring:
				v.SetString("", ind)
			case DTdate:
				v.SetDate(time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), ind)
			}

			continue
		}

		switch dt {
		case DTfloat:
			f, _ := toFloat(x)
			v.SetFloat(f.(float64), ind)
		case DTint:
			i, _ := toInt(x)
			v.SetInt(i.(int), ind)
		case DTstring:
			s, _ := toString(x)
			v.SetString(s.(string), ind)
		case DTdate:
			v.SetDate(x.(time.Time).UTC(), ind)
		}
	}

	return v, nil
}
