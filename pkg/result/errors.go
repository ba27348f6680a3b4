package result

import "github.com/richb-hanover/crusader/pkg/crusaderr"

// errInvalid is the sentinel wrapped by every .crr decode failure, so
// callers can errors.Is(err, crusaderr.ErrInvalidResult).
var errInvalid = crusaderr.ErrInvalidResult
