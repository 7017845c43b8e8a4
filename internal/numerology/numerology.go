// Package numerology implements the Pythagorean digit-reduction calculations
// used by the voice agent's tool set. All functions are pure and total: given
// well-formed input they always produce a value in {1..9, 11, 22, 33}.
// Input validation (date parsing, empty names) belongs to the dispatch layer.
package numerology

import (
	"time"
	"unicode"
)

// Master numbers are terminal reduction values and are never reduced further
// even though they exceed 9.
const (
	MasterEleven      = 11
	MasterTwentyTwo   = 22
	MasterThirtyThree = 33
)

func isMaster(n int) bool {
	return n == MasterEleven || n == MasterTwentyTwo || n == MasterThirtyThree
}

// Reduce repeatedly sums the decimal digits of n until the result is a single
// digit (1-9) or a master number (11, 22, 33).
func Reduce(n int) int {
	for n > 9 && !isMaster(n) {
		n = digitSum(n)
	}
	return n
}

func digitSum(n int) int {
	sum := 0
	for n > 0 {
		sum += n % 10
		n /= 10
	}
	return sum
}

// LifePath computes the Life Path number from a birth date.
// Month, day and year are reduced separately, summed, and reduced again.
func LifePath(birthDate time.Time) int {
	month := Reduce(int(birthDate.Month()))
	day := Reduce(birthDate.Day())
	year := Reduce(digitSum(birthDate.Year()))
	return Reduce(month + day + year)
}

// letterValue maps a letter onto the Pythagorean 1-9 cycle
// (A=1 ... I=9, J=1 ...). Non-letters yield 0 and are ignored by callers.
func letterValue(r rune) int {
	r = unicode.ToUpper(r)
	if r < 'A' || r > 'Z' {
		return 0
	}
	return int(r-'A')%9 + 1
}

// Expression computes the Expression (Destiny) number from a full name.
// Spaces and punctuation are ignored; the mapping is case-insensitive.
func Expression(fullName string) int {
	total := 0
	for _, r := range fullName {
		total += letterValue(r)
	}
	return Reduce(total)
}

// SoulUrge computes the Soul Urge (Heart's Desire) number from the vowels of
// a full name. Only A, E, I, O, U count; Y is never treated as a vowel here.
func SoulUrge(fullName string) int {
	total := 0
	for _, r := range fullName {
		switch unicode.ToUpper(r) {
		case 'A', 'E', 'I', 'O', 'U':
			total += letterValue(r)
		}
	}
	return Reduce(total)
}

// Birthday computes the Birthday number: the day of the month reduced.
func Birthday(birthDate time.Time) int {
	return Reduce(birthDate.Day())
}

// PersonalYear computes the Personal Year number for the given calendar year:
// birth month + birth day + target year, each reduced, then reduced again.
func PersonalYear(birthDate time.Time, year int) int {
	month := Reduce(int(birthDate.Month()))
	day := Reduce(birthDate.Day())
	yr := Reduce(digitSum(year))
	return Reduce(month + day + yr)
}
