package pepper

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Size is the number of slots in the rotation table.
const Size = 6

// SecretLength is the required length of every table entry.
const SecretLength = 4

// Table holds the six server-wide pepper secrets. Selection is keyed by
// calendar month so every account's pepper can be re-derived from its
// creation date, even after the active month has moved on.
type Table [Size]string

// defaultTable is the built-in fallback. It keeps the service bootable when
// no table is configured; operators are warned loudly instead.
var defaultTable = Table{"kR7w", "Zm3q", "Bd9t", "Xp2j", "Vf6n", "Hs4c"}

// Default returns the built-in rotation table.
func Default() Table {
	return defaultTable
}

// Load builds a rotation table from configured values. A malformed or absent
// table never prevents start-up: the built-in default is substituted and an
// operational warning is emitted.
func Load(values []string, log *zap.Logger) Table {
	if log == nil {
		log = zap.NewNop()
	}

	if len(values) != Size {
		log.Warn("pepper table malformed, using built-in default",
			zap.Int("expected_entries", Size),
			zap.Int("got_entries", len(values)),
		)
		return defaultTable
	}

	var table Table
	for i, value := range values {
		value = strings.TrimSpace(value)
		if len(value) != SecretLength {
			log.Warn("pepper table entry malformed, using built-in default",
				zap.Int("entry", i),
				zap.Int("expected_length", SecretLength),
			)
			return defaultTable
		}
		table[i] = value
	}

	return table
}

// ForDate selects the pepper for the supplied timestamp: (month-1) mod 6.
// The mapping is pure; the same date always yields the same secret.
func (t Table) ForDate(ts time.Time) string {
	return t[(int(ts.Month())-1)%Size]
}
