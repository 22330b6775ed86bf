package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/subscription-radar/internal/domain"
)

// ErrMissingColumns is matched by every *MissingColumnsError.
var ErrMissingColumns = errors.New("missing required columns")

// MissingColumnsError lists the required columns a statement lacks.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	quoted := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		quoted[i] = "'" + m + "'"
	}
	return fmt.Sprintf("Missing columns: [%s]. Please ensure CSV has Date, Description, and Debit Amount.", strings.Join(quoted, ", "))
}

// Is reports whether target is ErrMissingColumns.
func (e *MissingColumnsError) Is(target error) bool { return target == ErrMissingColumns }

// Result is the outcome of reading one statement.
type Result struct {
	Transactions []domain.Transaction
	Rows         int // data rows read, header excluded
	Skipped      int // rows dropped for bad dates, amounts or descriptions
}

const (
	colDate        = "date"
	colDescription = "description"
	colAmount      = "amount"
)

var requiredColumns = []string{colDate, colDescription, colAmount}

// columnAliases maps lower-cased header names to canonical columns.
var columnAliases = map[string]string{
	"date":                colDate,
	"transaction date":    colDate,
	"value date":          colDate,
	"txn date":            colDate,
	"description":         colDescription,
	"transaction details": colDescription,
	"particulars":         colDescription,
	"narration":           colDescription,
	"remarks":             colDescription,
	"debit":               colAmount,
	"withdrawal amount":   colAmount,
	"withdrawal amt.":     colAmount,
	"amount":              colAmount,
	"debit amount":        colAmount,
}

// dateLayouts are tried in order; day comes before month.
var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
	"02-01-06",
	"2006-01-02",
	"02 Jan 2006",
	"02-Jan-2006",
	"2 Jan 2006",
	"02 January 2006",
	"2006/01/02",
	"2/1/2006",
}

var currencyMarkers = strings.NewReplacer(
	"₹", "", "Rs.", "", "Rs", "", "INR", "", "$", "", "£", "", "€", "",
	",", "", " ", "", "\u00a0", "",
)

// Read parses a CSV bank statement export. The header row decides column
// positions; rows that cannot become a valid Transaction are skipped.
func Read(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &MissingColumnsError{Missing: requiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("Read: read header: %w", err)
	}

	index := mapColumns(header)
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}

	res := &Result{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Rows++
				res.Skipped++
				continue
			}
			return nil, fmt.Errorf("Read: read row %d: %w", res.Rows+1, err)
		}
		if isBlank(record) {
			continue
		}
		res.Rows++

		tx, ok := parseRow(record, index)
		if !ok {
			res.Skipped++
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

func mapColumns(header []string) map[string]int {
	index := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		canonical, ok := columnAliases[name]
		if !ok {
			continue
		}
		if _, seen := index[canonical]; !seen {
			index[canonical] = i
		}
	}
	return index
}

func parseRow(record []string, index map[string]int) (domain.Transaction, bool) {
	field := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, ok := ParseDate(field(colDate))
	if !ok {
		return domain.Transaction{}, false
	}
	amount, ok := ParseAmount(field(colAmount))
	if !ok {
		return domain.Transaction{}, false
	}
	desc := field(colDescription)
	if desc == "" {
		return domain.Transaction{}, false
	}

	tx := domain.Transaction{Date: date, RawDescription: desc, Amount: amount}
	return tx, tx.Valid()
}

// ParseDate parses a statement date, reading ambiguous forms day-first.
func ParseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.Date{}, false
}

// ParseAmount parses a debit amount after stripping currency markers and
// thousands separators. Only positive amounts are accepted.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = currencyMarkers.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
