package domain

import "fmt"

// ValidationError reports a request that is missing or has a malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Field)
}

// FetchError reports a remote asset that could not be retrieved.
// StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DecodeError reports image or audio bytes that could not be decoded.
// Which names the asset: "background", "foreground" or "audio".
type DecodeError struct {
	Which string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Which, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodingError reports a failure to produce the output container.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode video: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
