package connectors

import "errors"

var errNotConnected = errors.New("not connected")
