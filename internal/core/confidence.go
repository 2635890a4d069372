package core

import "fmt"

// Confidence grades how strongly a candidate invoice is tied to an order.
// Values are ordered: a larger value is a stronger match.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceWeak
	ConfidenceStrong
	ConfidenceExact
)

var confidenceNames = map[Confidence]string{
	ConfidenceNone:   "NONE",
	ConfidenceWeak:   "WEAK",
	ConfidenceStrong: "STRONG",
	ConfidenceExact:  "EXACT",
}

func (c Confidence) String() string {
	if name, ok := confidenceNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Confidence(%d)", int(c))
}

// ParseConfidence converts a confidence name back to its value.
func ParseConfidence(s string) (Confidence, error) {
	for c, name := range confidenceNames {
		if name == s {
			return c, nil
		}
	}
	return ConfidenceNone, fmt.Errorf("unknown confidence %q", s)
}

func (c Confidence) MarshalText() ([]byte, error) {
	if _, ok := confidenceNames[c]; !ok {
		return nil, fmt.Errorf("invalid confidence %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(text []byte) error {
	parsed, err := ParseConfidence(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
