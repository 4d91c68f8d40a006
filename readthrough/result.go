package readthrough

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Outcome is the terminal state of a lookup.
type Outcome int

const (
	// OutcomeFound means Value holds the record.
	OutcomeFound Outcome = iota + 1
	// OutcomeDefiniteAbsence means the filter has never seen the id.
	OutcomeDefiniteAbsence
	// OutcomePossiblePresenceMiss means the filter matched but the backing store has no record.
	OutcomePossiblePresenceMiss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeDefiniteAbsence:
		return "definite_absence"
	case OutcomePossiblePresenceMiss:
		return "possible_presence_miss"
	default:
		return "unknown"
	}
}

// Source says which tier answered a lookup.
type Source int

const (
	SourceNone Source = iota
	SourceLocal
	SourceCache
	SourceBacking
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceCache:
		return "cache"
	case SourceBacking:
		return "backing"
	default:
		return "none"
	}
}

type Result struct {
	Outcome Outcome
	// opaque record bytes, only set when Outcome is OutcomeFound
	Value  []byte
	Source Source
}

func (r Result) Found() bool {
	return r.Outcome == OutcomeFound
}

var ErrNoValue = errors.New("lookup found no record")

// Decode unmarshals a found json record into T.
func Decode[T any](r Result) (T, error) {
	var out T
	if !r.Found() {
		return out, fmt.Errorf("%w: %s", ErrNoValue, r.Outcome)
	}
	if err := json.Unmarshal(r.Value, &out); err != nil {
		return out, fmt.Errorf("failed to decode record: %w", err)
	}
	return out, nil
}
