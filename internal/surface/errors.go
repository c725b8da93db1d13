package surface

import "errors"

// ErrWindowClosed is returned by Present after the user closes the window.
var ErrWindowClosed = errors.New("surface window closed")
