package container

import "errors"

// ErrUnknownContainer is returned for operations on an id that is not (or no
// longer) present in the registry. A removed container reports this too.
var ErrUnknownContainer = errors.New("unknown container")
