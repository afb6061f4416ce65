package dataset

import "fmt"

// ConfigurationError is fatal and surfaced at pipeline construction:
// missing required size information for a training split, an unsupported
// dataset-type extension, or an otherwise unusable Config.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "dataset configuration: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
