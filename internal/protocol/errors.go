package protocol

import "fmt"

// The error types below are terminal for a connection: the listener logs
// them and closes without dispatching. None of them may carry token or key
// bytes in their message.

// FramingError indicates inbound bytes could not be classified or framed
// within the configured bounds.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "framing: " + e.Reason
}

// DecryptError indicates a legacy block failed RSA decryption.
type DecryptError struct {
	Err error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("legacy block decrypt failed: %v", e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// AuthError indicates an unknown site identifier or a signature mismatch
// on a structured payload.
type AuthError struct {
	Site   string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for site %q: %s", e.Site, e.Reason)
}

// DecodeError indicates a payload that passed transport checks but could
// not be parsed into a valid vote.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode: " + e.Reason
}

// ErrorClass returns a short identifier for an error, used as a metrics
// key and log field.
func ErrorClass(err error) string {
	switch err.(type) {
	case *FramingError:
		return "framing"
	case *DecryptError:
		return "decrypt"
	case *AuthError:
		return "auth"
	case *DecodeError:
		return "decode"
	default:
		return "other"
	}
}
