package usage

import "errors"

// ErrInvalidPhase is returned for records with an unknown phase.
var ErrInvalidPhase = errors.New("invalid usage phase")
