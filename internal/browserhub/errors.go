package browserhub

import "fmt"

// RequestError represents a failed platform API call, including non-2xx
// responses and transport failures.
type RequestError struct {
	Operation  string // The operation that failed (e.g., "create_session", "read_file")
	StatusCode int    // HTTP status code, if applicable (0 for transport errors)
	APIMessage string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("browserhub error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}
	return fmt.Sprintf("browserhub error during %s: %s", e.Operation, e.APIMessage)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
