package psm

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"
)

// All code interacting with files is here

const (
	Sep         = ','
	EOL         = '\n'
	StringDelim = '"'
	DateFormat  = "2006-01-02"
	FloatFormat = "%v"
	Header      = true
)

// Files reads and writes delimited text files.
type Files struct {
	fieldNames []string
	fieldTypes []DataTypes

	eol         byte
	sep         byte
	stringDelim byte
	dateFormat  string
	floatFormat string
	header      bool
	peek        int
	strict      bool

	file     *os.File
	fileName string
}

// FileOpt sets a property of Files.
type FileOpt func(f *Files) error

func NewFiles(opts ...FileOpt) (*Files, error) {
	f := &Files{
		eol:         byte(EOL),
		sep:         byte(Sep),
		stringDelim: byte(StringDelim),
		dateFormat:  DateFormat,
		floatFormat: FloatFormat,
		header:      Header,
	}

	for _, opt := range opts {
		if e := opt(f); e != nil {
			return nil, e
		}
	}

	return f, nil
}

// FileFieldNames sets the field names. If the file has a header, these replace the names in it.
func FileFieldNames(names []string) FileOpt {
	return func(f *Files) error {
		for _, nm := range names {
			if !validName(nm) {
				return fmt.Errorf("invalid field name: %q", nm)
			}
		}

		f.fieldNames = names
		return nil
	}
}

// FileFieldTypes sets the field types. If not set, they are imputed from the data.
func FileFieldTypes(types []DataTypes) FileOpt {
	return func(f *Files) error {
		for _, dt := range types {
			if dt == DTunknown {
				return fmt.Errorf("DTunknown is not a valid field type")
			}
		}

		f.fieldTypes = types
		return nil
	}
}

func FileSep(sep byte) FileOpt {
	return func(f *Files) error {
		if sep == '\n' || sep == '\r' || sep == f.stringDelim {
			return fmt.Errorf("illegal separator %q", sep)
		}

		f.sep = sep
		return nil
	}
}

func FileHeader(header bool) FileOpt {
	return func(f *Files) error {
		f.header = header
		return nil
	}
}

// FilePeek sets the number of rows used to impute field types. 0 means all rows.
func FilePeek(rows int) FileOpt {
	return func(f *Files) error {
		if rows < 0 {
			return fmt.Errorf("FilePeek must be non-negative")
		}

		f.peek = rows
		return nil
	}
}

// FileStrict makes a value that doesn't fit its field's type an error. Otherwise the field is promoted
// to a type that fits.
func FileStrict(strict bool) FileOpt {
	return func(f *Files) error {
		f.strict = strict
		return nil
	}
}

func FileDateFormat(format string) FileOpt {
	return func(f *Files) error {
		if format == "" {
			return fmt.Errorf("empty date format")
		}

		f.dateFormat = format
		return nil
	}
}

func FileFloatFormat(format string) FileOpt {
	return func(f *Files) error {
		if !strings.Contains(format, "%") {
			return fmt.Errorf("bad float format %q", format)
		}

		f.floatFormat = format
		return nil
	}
}

func (f *Files) Open(fileName string) error {
	var e error
	f.fileName = fileName
	f.file, e = os.Open(fileName)

	return e
}

func (f *Files) Create(fileName string) error {
	var e error
	f.fileName = fileName
	f.file, e = os.Create(fileName)

	return e
}

func (f *Files) FileName() string {
	return f.fileName
}

func (f *Files) FieldNames() []string {
	return f.fieldNames
}

func (f *Files) FieldTypes() []DataTypes {
	return f.fieldTypes
}

func (f *Files) Close() error {
	if f.file != nil {
		e := f.file.Close()
		f.file = nil
		return e
	}

	return fmt.Errorf("no open files")
}

// Load reads the open file into a DF and closes the file.
func (f *Files) Load() (*DF, error) {
	if f.file == nil {
		return nil, fmt.Errorf("no open file in Load")
	}
	defer func() { _ = f.Close() }()

	return f.read(f.file)
}

// FileLoad opens fileName, reads it with the options given and returns the DF.
func FileLoad(fileName string, opts ...FileOpt) (*DF, error) {
	var (
		f *Files
		e error
	)
	if f, e = NewFiles(opts...); e != nil {
		return nil, e
	}

	if e := f.Open(fileName); e != nil {
		return nil, e
	}

	return f.Load()
}

func (f *Files) read(r io.Reader) (*DF, error) {
	rdr := csv.NewReader(r)
	rdr.Comma = rune(f.sep)
	rdr.TrimLeadingSpace = true
	rdr.ReuseRecord = false

	var (
		records [][]string
		e       error
	)
	if records, e = rdr.ReadAll(); e != nil {
		return nil, fmt.Errorf("reading %s: %w", f.fileName, e)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("file %s is empty", f.fileName)
	}

	nFields := len(records[0])
	names := f.fieldNames
	if f.header {
		if names == nil {
			for _, h := range records[0] {
				names = append(names, cleanName(h))
			}
		}

		records = records[1:]
	}

	if names == nil {
		for ind := 0; ind < nFields; ind++ {
			names = append(names, fmt.Sprintf("v%d", ind))
		}
	}

	if len(names) != nFields {
		return nil, fmt.Errorf("have %d field names but %d fields in %s", len(names), nFields, f.fileName)
	}

	if f.fieldTypes != nil && len(f.fieldTypes) != nFields {
		return nil, fmt.Errorf("have %d field types but %d fields in %s", len(f.fieldTypes), nFields, f.fileName)
	}

	var cols []*Col
	for c := 0; c < nFields; c++ {
		vals := make([]string, len(records))
		for row := 0; row < len(records); row++ {
			vals[row] = strings.TrimSpace(records[row][c])
		}

		dt := imputeType(vals, f.peek)
		if f.fieldTypes != nil {
			dt = f.fieldTypes[c]
		}

		var (
			v  *Vector
			e1 error
		)
		if v, e1 = f.parse(vals, dt, names[c]); e1 != nil {
			return nil, e1
		}

		var (
			col *Col
			e2  error
		)
		if col, e2 = NewCol(v, v.VectorType(), ColName(names[c])); e2 != nil {
			return nil, e2
		}

		cols = append(cols, col)
	}

	return NewDF(cols...)
}

// parse converts vals to dt. If a value doesn't fit and the file isn't strict, dt is promoted and parsing restarts.
func (f *Files) parse(vals []string, dt DataTypes, name string) (*Vector, error) {
	for {
		v := MakeVector(dt, len(vals))
		bad := -1
		for row, s := range vals {
			if !f.assign(v, s, row) {
				bad = row
				break
			}
		}

		if bad < 0 {
			return v, nil
		}

		if f.strict || dt == DTstring {
			return nil, fmt.Errorf("field %s row %d: cannot convert %q to %s", name, bad, vals[bad], dt)
		}

		next := promote(dt, bestType(vals[bad]))
		if next == dt || next == DTdate {
			next = DTstring
		}

		dt = next
	}
}

func (f *Files) assign(v *Vector, s string, row int) bool {
	switch v.VectorType() {
	case DTfloat:
		x, ok := toFloat(s)
		if !ok {
			return false
		}

		v.SetFloat(x.(float64), row)
	case DTint:
		x, ok := toInt(s)
		if !ok {
			return false
		}

		v.SetInt(x.(int), row)
	case DTdate:
		d, e := time.Parse(f.dateFormat, s)
		if e != nil {
			x, ok := toDate(s)
			if !ok {
				return false
			}
			d = x.(time.Time)
		}

		v.SetDate(d, row)
	case DTstring:
		v.SetString(s, row)
	default:
		return false
	}

	return true
}

func imputeType(vals []string, peek int) DataTypes {
	if peek == 0 || peek > len(vals) {
		peek = len(vals)
	}

	dt := DTunknown
	for _, s := range vals[:peek] {
		dt = promote(dt, bestType(s))
		if dt == DTstring {
			break
		}
	}

	if dt == DTunknown {
		return DTstring
	}

	return dt
}

// cleanName turns a header field into a valid column name.
func cleanName(h string) string {
	const illegal = "!@#$%^&*()=+-;:'`/.,>< ~" + `"`
	h = strings.TrimSpace(h)
	out := []rune(h)
	for ind, r := range out {
		if strings.ContainsRune(illegal, r) {
			out[ind] = '_'
		}
	}

	return string(out)
}

// ***************** Writing *****************

// Save writes the columns of df to fileName. If colNames is empty, all columns are written.
func (f *Files) Save(fileName string, df *DF, colNames ...string) error {
	if colNames == nil {
		colNames = df.ColumnNames()
	}

	var (
		dfOut *DF
		e     error
	)
	if dfOut, e = df.KeepColumns(colNames...); e != nil {
		return e
	}

	if e := f.Create(fileName); e != nil {
		return e
	}
	defer func() { _ = f.Close() }()

	f.fieldNames = colNames
	f.fieldTypes = dfOut.ColumnTypes()
	if e := f.WriteHeader(); e != nil {
		return e
	}

	for row := 0; row < dfOut.RowCount(); row++ {
		var line []any
		for c := dfOut.Next(true); c != nil; c = dfOut.Next(false) {
			line = append(line, c.Element(row))
		}

		if e := f.WriteLine(line); e != nil {
			return e
		}
	}

	return nil
}

func (f *Files) WriteLine(v []any) error {
	var line []byte
	for ind := 0; ind < len(v); ind++ {
		var lx []byte
		switch d := v[ind].(type) {
		case float64:
			if !math.IsNaN(d) {
				lx = []byte(fmt.Sprintf(f.floatFormat, d))
			}
		case int:
			lx = []byte(fmt.Sprintf("%v", d))
		case time.Time:
			lx = []byte(d.Format(f.dateFormat))
		case string:
			lx = []byte(strings.ReplaceAll(d, string(f.stringDelim), string([]byte{f.stringDelim, f.stringDelim})))
			lx = append([]byte{f.stringDelim}, lx...)
			lx = append(lx, f.stringDelim)
		default:
			lx = []byte("#err#")
		}
		line = append(line, lx...)
		if ind < len(v)-1 {
			line = append(line, f.sep)
		}
	}
	if _, e := f.file.Write(line); e != nil {
		return e
	}
	_, e := f.file.Write([]byte{f.eol})

	return e
}

func (f *Files) WriteHeader() error {
	if !f.header {
		return nil
	}

	if f.fieldNames == nil {
		return fmt.Errorf("field names not set in *Files")
	}

	_, e := f.file.WriteString(strings.Join(f.fieldNames, string(rune(f.sep))) + string(rune(f.eol)))

	return e
}
