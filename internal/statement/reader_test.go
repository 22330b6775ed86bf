package statement

import (
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_MapsAliasedColumns(t *testing.T) {
	csv := "Txn Date,Narration,Withdrawal Amt.,Deposit Amt.\n" +
		"05/01/2024,UPI/DR/412345678901/NETFLIX/YBL,\"₹ 649.00\",\n" +
		"05/02/2024,UPI/DR/412345678902/NETFLIX/YBL,649,\n" +
		"06/02/2024,SALARY CREDIT,,50000\n"

	res, err := Read(strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Transactions, 2)

	first := res.Transactions[0]
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 5}, first.Date)
	assert.Equal(t, "UPI/DR/412345678901/NETFLIX/YBL", first.RawDescription)
	assert.Equal(t, "649", first.Amount.String())
}

func TestRead_FirstMatchingColumnWins(t *testing.T) {
	csv := "Date,Value Date,Description,Amount\n" +
		"01/03/2024,02/03/2024,SPOTIFY,119\n"

	res, err := Read(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 1}, res.Transactions[0].Date)
}

func TestRead_SkipsBadRows(t *testing.T) {
	csv := "date,description,debit\n" +
		"not a date,NETFLIX,649\n" +
		"01/01/2024,NETFLIX,abc\n" +
		"01/01/2024,NETFLIX,-10\n" +
		"01/01/2024,NETFLIX,0\n" +
		"01/01/2024,,10\n" +
		",,\n" +
		"2024-01-31,NETFLIX,\"1,299.50\"\n"

	res, err := Read(strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 6, res.Rows)
	assert.Equal(t, 5, res.Skipped)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "1299.5", res.Transactions[0].Amount.String())
}

func TestRead_MissingColumns(t *testing.T) {
	_, err := Read(strings.NewReader("Date,Merchant,Debit\n01/01/2024,X,1\n"))
	require.Error(t, err)

	var mc *MissingColumnsError
	require.True(t, errors.As(err, &mc))
	assert.Equal(t, []string{"description"}, mc.Missing)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Equal(t, "Missing columns: ['description']. Please ensure CSV has Date, Description, and Debit Amount.", err.Error())
}

func TestRead_EmptyInput(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestRead_HeaderWithBOM(t *testing.T) {
	res, err := Read(strings.NewReader("\ufeffDate,Description,Amount\n01/01/2024,NETFLIX,649\n"))
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 1)
}

func TestParseDate(t *testing.T) {
	want := civil.Date{Year: 2024, Month: 2, Day: 3}
	for _, s := range []string{
		"03/02/2024", "03-02-2024", "03.02.2024", "03/02/24", "03-02-24",
		"2024-02-03", "03 Feb 2024", "03-Feb-2024", "3 Feb 2024", "03 February 2024",
		"2024/02/03", "3/2/2024",
	} {
		t.Run(s, func(t *testing.T) {
			got, ok := ParseDate(s)
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}

	_, ok := ParseDate("31/02/2024")
	assert.False(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"649", "649", true},
		{"₹649.00", "649", true},
		{"Rs. 1,499.00", "1499", true},
		{"INR 99.5", "99.5", true},
		{"$12.34", "12.34", true},
		{"0", "", false},
		{"-5", "", false},
		{"", "", false},
		{"n/a", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}
