package domain

import (
	"encoding/json"
	"fmt"
)

type EntityKind uint8

const (
	EntityInvalid EntityKind = iota
	EntityAddress
	EntityRange
)

func (k EntityKind) String() string {
	switch k {
	case EntityAddress:
		return "address"
	case EntityRange:
		return "range"
	default:
		return "invalid"
	}
}

// Entity is the parsed form of one candidate token. Only the fields matching
// Kind are meaningful.
type Entity struct {
	Kind EntityKind

	// Address
	Value   Int
	Version uint8

	// Range
	Start Int
	End   Int
}

func AddressEntity(value Int, version uint8) Entity {
	return Entity{Kind: EntityAddress, Value: value, Version: version}
}

func RangeEntity(start, end Int) Entity {
	return Entity{Kind: EntityRange, Start: start, End: end}
}

// Range is an inclusive [Start, End] interval of address integers. Bounds are
// kept as reported by the feed; Start > End is possible for numeric ranges.
type Range struct {
	Start Int
	End   Int
}

// Less orders ranges by start, then end.
func (r Range) Less(o Range) bool {
	if c := r.Start.Cmp(o.Start.Uint128); c != 0 {
		return c < 0
	}
	return r.End.Less(o.End)
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Int{r.Start, r.End})
}

func (r *Range) UnmarshalJSON(data []byte) error {
	var pair []Int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("range: want 2 bounds, got %d", len(pair))
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}
