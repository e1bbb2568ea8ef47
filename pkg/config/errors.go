package config

import "fmt"

// ConfigurationError reports a missing or unusable input file, or settings that are
// inconsistent with each other or with the data. It is fatal.
type ConfigurationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
