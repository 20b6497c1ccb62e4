package metrics

import "codeberg.org/mutker/smlmqttprocessor/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidListen = errors.ErrorCode("metrics_invalid_listen")

	// Registration Errors
	ErrRegister = errors.ErrInitFailed

	// Server Errors
	ErrServe         = errors.ErrorCode("metrics_serve_failed")
	ErrServeShutdown = errors.ErrShutdownFailed
)
