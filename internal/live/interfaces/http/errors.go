package http

import "errors"

var errNilRegistry = errors.New("ws handler: nil registry")
