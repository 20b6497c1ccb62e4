package publish

import "codeberg.org/mutker/smlmqttprocessor/internal/errors"

const (
	ErrConnect       = errors.ErrConnect
	ErrPublish       = errors.ErrPublish
	ErrEncode        = errors.ErrEncode
	ErrClose         = errors.ErrShutdownFailed
	ErrUnknownKind   = errors.ErrInvalidPublisher
	ErrInvalidBroker = errors.ErrorCode("publish_invalid_broker")
)
