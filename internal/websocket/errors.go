package websocket

import "errors"

// ErrStreamClosed is returned when the server ends the stream with a normal closure.
var ErrStreamClosed = errors.New("stream closed by server")
