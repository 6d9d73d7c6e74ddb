package runner

import "fmt"

// AuthError means the gateway rejected our credential. The run cannot
// proceed and the operator must re-authorize.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authorization failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// FetchError is a failed market read after retries were exhausted.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// SubmissionError is a failed order write. The batch may or may not
// have been applied server-side; it is never auto-retried.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit %s: %v", e.Op, e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// NotificationError is a failed report delivery. It is logged and never
// invalidates the run that produced the report.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string { return fmt.Sprintf("notify: %v", e.Err) }
func (e *NotificationError) Unwrap() error { return e.Err }

// ConfigError is an unreadable, invalid or unwritable run config.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %v", e.Path, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }
