package emotions

import "errors"

// ErrUnknownCategory is returned when a category name is not one of the
// seven known categories.
var ErrUnknownCategory = errors.New("emotions: unknown category")
