package util

// PostgresConstraintName returns the name PostgreSQL gives to an unnamed
// constraint, <table>_<column>_<suffix>, shortened to fit in 63 bytes. The
// table part is shortened first unless the column part is longer than 28 bytes.
func PostgresConstraintName(table, column, suffix string) string {
	const maxLength = 63
	name := table + "_" + column + "_" + suffix
	overflow := len(name) - maxLength
	if overflow <= 0 {
		return name
	}
	if extra := len(column) - 28; extra > 0 {
		cut := min(overflow, extra)
		column = column[:len(column)-cut]
		overflow -= cut
	}
	table = table[:max(len(table)-overflow, 0)]
	return table + "_" + column + "_" + suffix
}
