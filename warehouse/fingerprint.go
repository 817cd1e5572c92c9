package warehouse

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// TrackedAttributes is the ordered set of attribute names whose values
// participate in change detection for one dimension stream. Attributes
// outside this set are stored but never open a new version on their own.
type TrackedAttributes []AttributeNameString

// BuildTrackedAttributes validates and returns a tracked attribute set:
// it must not be empty and must not contain blank or repeated names.
func BuildTrackedAttributes(names ...AttributeNameString) (TrackedAttributes, error) {
	if len(names) == 0 {
		return nil, errors.Join(ErrSchemaViolation, errors.New("tracked attribute set is empty"))
	}

	seen := make(map[AttributeNameString]struct{}, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, errors.Join(ErrSchemaViolation, errors.New("tracked attribute name is blank"))
		}

		if _, dup := seen[name]; dup {
			return nil, errors.Join(ErrSchemaViolation, fmt.Errorf("tracked attribute %q repeated", name))
		}

		seen[name] = struct{}{}
	}

	return TrackedAttributes(names), nil
}

// Separators for the fingerprint input. Values and names are joined with
// control characters that cannot occur in canonical attribute strings, so
// ("ab","c") and ("a","bc") hash differently.
const (
	fingerprintNameSep  = "\x1f"
	fingerprintValueSep = "\x1e"
)

// Fingerprint computes the hex-encoded SHA-256 content hash of a record's
// tracked attributes, in tracked order, with surrounding whitespace
// normalized away. Records whose tracked attributes are equal produce equal
// fingerprints; a missing tracked attribute is a schema violation.
//
// The fingerprint deliberately covers only tracked attributes: descriptive
// attribute changes keep the fingerprint stable and therefore never open a
// new version.
func Fingerprint(record EntityRecord, tracked TrackedAttributes) (FingerprintString, error) {
	hash := sha256.New()

	for _, name := range tracked {
		value, ok := record.Attribute(name)
		if !ok {
			return "", errors.Join(
				ErrSchemaViolation,
				fmt.Errorf("tracked attribute %q missing for %s", name, describeRecord(record.NaturalKey)),
			)
		}

		hash.Write([]byte(name))
		hash.Write([]byte(fingerprintNameSep))
		hash.Write([]byte(strings.TrimSpace(value)))
		hash.Write([]byte(fingerprintValueSep))
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
