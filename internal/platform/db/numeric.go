package db

import (
	"strconv"

	"github.com/jackc/pgx/v5/pgtype"
)

// Numeric converts a float into a NUMERIC parameter.
func Numeric(f float64) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(strconv.FormatFloat(f, 'f', -1, 64))
	return n
}

// NullableNumeric converts an optional float; nil becomes SQL NULL.
func NullableNumeric(f *float64) pgtype.Numeric {
	if f == nil {
		return pgtype.Numeric{}
	}
	return Numeric(*f)
}

// Float reads a NUMERIC column, treating NULL as zero.
func Float(n pgtype.Numeric) float64 {
	if !n.Valid {
		return 0
	}
	f, _ := n.Float64Value()
	return f.Float64
}

// FloatPtr reads a nullable NUMERIC column.
func FloatPtr(n pgtype.Numeric) *float64 {
	if !n.Valid {
		return nil
	}
	f := Float(n)
	return &f
}
