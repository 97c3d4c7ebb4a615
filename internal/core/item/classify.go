package item

import "fmt"

// Kind is the structural variant of an item.
type Kind int

const (
	KindGeneric Kind = iota
	KindMarker
)

// Marker field names.
const (
	FieldGeo       = "g"
	FieldOrdinal   = "o"
	FieldTimestamp = "t"
)

var markerFields = [...]string{FieldGeo, FieldOrdinal, FieldTimestamp}

// Marker is the value object for items that carry a geo tag, an ordinal and a
// timestamp.
type Marker struct {
	Geo       any `json:"g"`
	Ordinal   any `json:"o"`
	Timestamp any `json:"t"`
}

// Classify returns KindMarker when fields carries every marker field with a
// non-nil value, KindGeneric otherwise.
func Classify(fields map[string]any) Kind {
	for _, f := range markerFields {
		if v, ok := fields[f]; !ok || v == nil {
			return KindGeneric
		}
	}
	return KindMarker
}

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindMarker:
		return "marker"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
