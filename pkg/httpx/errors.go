package httpx

import "errors"

var ErrNoToken = errors.New("no session token")
