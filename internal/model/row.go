package model

// Row is one result row of an executed query, keyed by column name.
// Values are int64, float64, string or nil; the executor converts text
// columns to string.
type Row map[string]any

// Int64 returns the column as an integer when it holds a number.
func (r Row) Int64(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Float returns the column as a float when it holds a number.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// String returns the column as a string; nil and missing columns yield "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case nil:
		return ""
	}
	return ""
}
