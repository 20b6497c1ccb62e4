package errors

const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig    ErrorCode = "invalid_configuration"
	ErrReadConfig       ErrorCode = "read_config_failed"
	ErrBindFlags        ErrorCode = "bind_flags_failed"
	ErrInvalidWindow    ErrorCode = "invalid_window"
	ErrInvalidTimeout   ErrorCode = "invalid_timeout"
	ErrInvalidPublisher ErrorCode = "invalid_publisher"
	ErrInvalidLogLevel  ErrorCode = "invalid_log_level"

	// Input errors
	ErrOpenInput ErrorCode = "open_input_failed"
	ErrReadInput ErrorCode = "read_input_failed"

	// Parsing errors
	ErrMalformedLine ErrorCode = "malformed_line"

	// Publishing errors
	ErrConnect ErrorCode = "connect_failed"
	ErrPublish ErrorCode = "publish_failed"
	ErrEncode  ErrorCode = "encode_failed"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrMainLoop       ErrorCode = "main_loop_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrAlreadyRunning:   "Another instance is already running",
	ErrInvalidConfig:    "Invalid configuration",
	ErrReadConfig:       "Failed to read config file",
	ErrBindFlags:        "Failed to bind flags",
	ErrInvalidWindow:    "Invalid window size",
	ErrInvalidTimeout:   "Invalid timeout",
	ErrInvalidPublisher: "Unknown publisher",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrOpenInput:        "Failed to open input",
	ErrReadInput:        "Failed to read input",
	ErrMalformedLine:    "Malformed line",
	ErrConnect:          "Failed to connect to broker",
	ErrPublish:          "Failed to publish",
	ErrEncode:           "Failed to encode payload",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrMainLoop:         "Error in main loop",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
