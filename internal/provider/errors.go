package provider

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoHealthyProviders is returned when no provider is eligible before the
// first attempt is made.
var ErrNoHealthyProviders = eris.New("no healthy providers available")

// AllProvidersFailedError is returned once the attempt ceiling is reached or
// every eligible provider has failed. It unwraps to the last underlying error.
type AllProvidersFailedError struct {
	Attempts int
	Tried    []string
	Last     error
}

func (e *AllProvidersFailedError) Error() string {
	msg := fmt.Sprintf("all providers failed after %d attempts (%s)", e.Attempts, strings.Join(e.Tried, ", "))
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.Last
}
