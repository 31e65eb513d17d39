package recommend

import "errors"

// ErrUnknownEntity is returned when the query entity does not exist. It is
// never replaced by an empty result.
var ErrUnknownEntity = errors.New("unknown entity")

// ErrInvalidKind is returned for a kind other than posting or candidate.
var ErrInvalidKind = errors.New("invalid entity kind")
