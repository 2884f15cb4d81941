package eventbus

import "errors"

// ErrClosed шина уже закрыта
var ErrClosed = errors.New("event bus closed")
