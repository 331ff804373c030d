package protocol

import "errors"

// ErrUnknownMessageType is returned by DecodeMetricsMessage when the "type"
// discriminator does not match a known message shape. Callers should log
// and drop the message rather than treat this as fatal.
var ErrUnknownMessageType = errors.New("protocol: unknown message type")
