package bloom

import "errors"

// ErrInvalidParameter is returned for filter sizes that cannot be built.
var ErrInvalidParameter = errors.New("invalid filter parameter")

// ErrSpecMismatch is returned when a stored bit array was built with a different spec.
var ErrSpecMismatch = errors.New("filter spec does not match stored bit array")
