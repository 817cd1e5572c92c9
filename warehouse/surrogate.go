package warehouse

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// surrogateNamespace is the fixed UUID namespace for all derived surrogate
// keys. Changing it would re-key every stored version, so it never changes.
var surrogateNamespace = uuid.MustParse("5edbbf3c-9c52-4f6d-9a2e-7d1f94c3b0aa")

// SurrogateKey derives a stable, name-based UUID from natural-key material.
// The same inputs always produce the same key, which keeps replayed runs
// byte-identical and makes fact-to-dimension joins reproducible.
func SurrogateKey(naturalKey NaturalKeyString, discriminators ...string) uuid.UUID {
	parts := append([]string{naturalKey}, discriminators...)

	return uuid.NewSHA1(surrogateNamespace, []byte(strings.Join(parts, "\x00")))
}

// VersionSurrogateKey derives the surrogate key of one entity version from
// its natural key and the start of its validity interval.
func VersionSurrogateKey(naturalKey NaturalKeyString, effectiveStart time.Time) uuid.UUID {
	return SurrogateKey(naturalKey, effectiveStart.UTC().Format(time.RFC3339Nano))
}
