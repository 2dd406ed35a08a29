// Package tradedate computes Japanese trading days for the Tokyo Stock
// Exchange: weekdays excluding national holidays and the year-end closure
// (Dec 31 – Jan 3).
package tradedate

import "time"

// IsBusinessDay reports whether d is a TSE trading day
func IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if isYearEndClosure(d) {
		return false
	}
	return !IsHoliday(d)
}

// NextTradeDate returns the first trading day strictly after asOf
func NextTradeDate(asOf time.Time) time.Time {
	candidate := asOf.AddDate(0, 0, 1)
	for !IsBusinessDay(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// PrevTradeDate returns the last trading day strictly before asOf
func PrevTradeDate(asOf time.Time) time.Time {
	candidate := asOf.AddDate(0, 0, -1)
	for !IsBusinessDay(candidate) {
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}

// TSE does not trade Dec 31 through Jan 3 regardless of weekday
func isYearEndClosure(d time.Time) bool {
	m, day := d.Month(), d.Day()
	return (m == time.December && day == 31) || (m == time.January && day <= 3)
}

// IsHoliday reports whether d is a Japanese national holiday, including
// substitute holidays and the citizens' holiday rule.
func IsHoliday(d time.Time) bool {
	if isFixedOrMovableHoliday(d) {
		return true
	}
	if isSubstituteHoliday(d) {
		return true
	}
	return isCitizensHoliday(d)
}

func isFixedOrMovableHoliday(d time.Time) bool {
	y, m, day := d.Year(), d.Month(), d.Day()

	switch m {
	case time.January:
		if day == 1 {
			return true // 元日
		}
		if isNthMonday(d, 2) {
			return true // 成人の日
		}
	case time.February:
		if day == 11 {
			return true // 建国記念の日
		}
		if day == 23 && y >= 2020 {
			return true // 天皇誕生日
		}
	case time.March:
		if day == vernalEquinoxDay(y) {
			return true // 春分の日
		}
	case time.April:
		if day == 29 {
			return true // 昭和の日
		}
	case time.May:
		if day == 3 || day == 4 || day == 5 {
			return true // 憲法記念日・みどりの日・こどもの日
		}
	case time.July:
		if isNthMonday(d, 3) {
			return true // 海の日
		}
	case time.August:
		if day == 11 {
			return true // 山の日
		}
	case time.September:
		if isNthMonday(d, 3) {
			return true // 敬老の日
		}
		if day == autumnalEquinoxDay(y) {
			return true // 秋分の日
		}
	case time.October:
		if isNthMonday(d, 2) {
			return true // スポーツの日
		}
	case time.November:
		if day == 3 || day == 23 {
			return true // 文化の日・勤労感謝の日
		}
	}
	return false
}

// A holiday falling on Sunday shifts to the next non-holiday weekday
func isSubstituteHoliday(d time.Time) bool {
	back := d.AddDate(0, 0, -1)
	for isFixedOrMovableHoliday(back) {
		if back.Weekday() == time.Sunday {
			return true
		}
		back = back.AddDate(0, 0, -1)
	}
	return false
}

// A weekday sandwiched between two holidays is itself a holiday
// (occurs in Silver Week Septembers).
func isCitizensHoliday(d time.Time) bool {
	if d.Weekday() == time.Sunday || isFixedOrMovableHoliday(d) {
		return false
	}
	prev := d.AddDate(0, 0, -1)
	next := d.AddDate(0, 0, 1)
	return isFixedOrMovableHoliday(prev) && isFixedOrMovableHoliday(next)
}

func isNthMonday(d time.Time, n int) bool {
	if d.Weekday() != time.Monday {
		return false
	}
	return (d.Day()-1)/7 == n-1
}

// Equinox approximations valid for 2000–2099
func vernalEquinoxDay(year int) int {
	return int(20.69115 + 0.242194*float64(year-2000) - float64((year-2000)/4))
}

func autumnalEquinoxDay(year int) int {
	return int(23.09 + 0.242194*float64(year-2000) - float64((year-2000)/4))
}
