package extract

import "fmt"

// InvalidResponseError reports backend output that could not be turned into
// an extraction result.
type InvalidResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: invalid response: %s", e.Provider, e.Reason)
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// Invalid builds an InvalidResponseError.
func Invalid(provider, reason string, err error) error {
	return &InvalidResponseError{Provider: provider, Reason: reason, Err: err}
}
