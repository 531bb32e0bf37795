package core

import (
	"errors"
	"fmt"
)

// ConfigError is a configuration problem with an instruction for fixing it.
type ConfigError struct {
	Code    string // stable code for programmatic handling
	Message string // what is wrong
	Action  string // what to do about it
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Configuration error codes.
const (
	ErrCodeEnvFileMissing  = "ENV_FILE_MISSING"
	ErrCodeMissingConfig   = "MISSING_CONFIG"
	ErrCodeInvalidValue    = "INVALID_VALUE"
	ErrCodeInvalidTimezone = "INVALID_TIMEZONE"
	ErrCodeMissingAuth     = "MISSING_AUTH"
)

// ErrEnvFileMissing reports a missing .env file.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env or export the variables directly",
	}
}

// ErrMissingConfig reports a required variable that is not set.
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrInvalidValue reports a variable whose value is out of range.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	msg := fmt.Sprintf("Invalid %s", varName)
	if value != "" {
		msg = fmt.Sprintf("Invalid %s '%s'", varName, value)
	}
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("%s: %s", msg, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file", varName),
	}
}

// ErrInvalidTimezone reports an unknown IANA zone in CREDITS_TIMEZONE.
func ErrInvalidTimezone(name string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidTimezone,
		Message: fmt.Sprintf("Unknown CREDITS_TIMEZONE '%s': %v", name, cause),
		Action:  "Use an IANA zone name such as Asia/Seoul or UTC",
	}
}

// ErrMissingAuth reports a provider selected without its API key.
func ErrMissingAuth(provider string) *ConfigError {
	action := fmt.Sprintf("Set the API key for %s in your .env file", provider)
	switch provider {
	case MirrorProviderGemini:
		action = "Set GEMINI_API_KEY in your .env file"
	case MirrorProviderOpenAI:
		action = "Set OPENAI_API_KEY in your .env file"
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing credentials for mirror provider %s", provider),
		Action:  action,
	}
}

// IsConfigError unwraps err to a *ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// GetErrorCode returns the ConfigError code in err's chain, or "".
func GetErrorCode(err error) string {
	if ce, ok := IsConfigError(err); ok {
		return ce.Code
	}
	return ""
}
