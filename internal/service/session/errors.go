package session

import "errors"

var ErrInvalidID = errors.New("invalid session id")
