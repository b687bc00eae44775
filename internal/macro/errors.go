package macro

import "errors"

// ErrCodec is returned for unknown or malformed records.
var ErrCodec = errors.New("malformed event record")
