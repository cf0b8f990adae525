// internal/game/score.go
//
// Scoring for a guess against a secret.
//
// Notes:
//   • Inputs are assumed to be validated (exactly 4 ASCII digits); callers
//     reject malformed input before scoring.
//   • Digit matches use multiset intersection: each digit value contributes
//     min(count in guess, count in secret). Place matches are included.

package game

// Score compares guess with secret.
// The returned ScoredGuess has Seq == 0; the engine assigns it on append.
func Score(guess, secret string) ScoredGuess {
	var gc, sc [10]int
	places := 0
	for i := 0; i < DigitCount; i++ {
		if guess[i] == secret[i] {
			places++
		}
		gc[guess[i]-'0']++
		sc[secret[i]-'0']++
	}

	digits := 0
	for d := 0; d < 10; d++ {
		digits += min(gc[d], sc[d])
	}
	return ScoredGuess{
		Guess:             guess,
		ExactDigitMatches: digits,
		ExactPlaceMatches: places,
	}
}

// ValidDigits reports whether s is exactly DigitCount ASCII digits.
func ValidDigits(s string) bool {
	if len(s) != DigitCount {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Won reports whether the guess matched every position.
func (g ScoredGuess) Won() bool { return g.ExactPlaceMatches == DigitCount }
