package nlquery

import "time"

// yearsBefore returns the same calendar day n years before d, at midnight in
// d's location. Feb 29 becomes Feb 28 when the target year is not a leap
// year; time.AddDate would roll it over to Mar 1.
func yearsBefore(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	target := y - n
	if m == time.February && day == 29 && !isLeapYear(target) {
		day = 28
	}
	return time.Date(target, m, day, 0, 0, 0, 0, d.Location())
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
