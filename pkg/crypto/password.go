package crypto

import "strings"

const (
	// MinPasswordLength is the shortest acceptable password.
	MinPasswordLength = 8

	// denylistMaxLength is the longest password still subject to the
	// common-password denylist. Longer secrets carry enough entropy from
	// length alone.
	denylistMaxLength = 15

	// maxRepeatedRun is the longest permitted run of one repeated character.
	maxRepeatedRun = 3
)

// commonSecrets are substrings that disqualify short passwords outright.
var commonSecrets = []string{
	"password",
	"passwort",
	"123456",
	"12345678",
	"qwerty",
	"abc123",
	"letmein",
	"iloveyou",
	"welcome",
	"monkey",
	"dragon",
	"football",
	"baseball",
	"master",
	"secret",
	"geheim",
	"admin",
}

// IsGoodPassword applies the password quality policy: a minimum length, no
// run of four or more identical characters, and no common-password substring
// for secrets short enough that length alone is not adequate protection.
func IsGoodPassword(secret string) bool {
	runes := []rune(secret)
	if len(runes) < MinPasswordLength {
		return false
	}

	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run > maxRepeatedRun {
				return false
			}
		} else {
			run = 1
		}
	}

	if len(runes) <= denylistMaxLength {
		lowered := strings.ToLower(secret)
		for _, common := range commonSecrets {
			if strings.Contains(lowered, common) {
				return false
			}
		}
	}

	return true
}
