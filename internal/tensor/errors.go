package tensor

import "errors"

// ErrShapeMismatch is returned when tensor ranks or dimensions are
// inconsistent with what an operation requires.
var ErrShapeMismatch = errors.New("shape mismatch")
