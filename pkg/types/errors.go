package types

import (
	"errors"
	"fmt"
)

// ErrNoImage is returned when a run is started without image data
var ErrNoImage = errors.New("no image provided")

// ErrTooManyPixels is wrapped by DecodeError when an image's declared
// dimensions exceed the codec's pixel budget
var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// DecodeError means the uploaded bytes could not be decoded as an image
type DecodeError struct {
	MIMEType string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.MIMEType != "" {
		return fmt.Sprintf("cannot decode image (%s): %v", e.MIMEType, e.Err)
	}
	return fmt.Sprintf("cannot decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PayloadTooLargeError means the encoded image exceeds the transport ceiling
// even at the lowest allowed quality
type PayloadTooLargeError struct {
	Length int
	Limit  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("encoded image is %d characters, limit is %d", e.Length, e.Limit)
}

// UpstreamError is a non-success answer from a third-party provider
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, body)
}

// UpstreamTimeoutError means a provider call did not finish in time
type UpstreamTimeoutError struct {
	Provider string
	Err      error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("%s did not respond in time", e.Provider)
}

func (e *UpstreamTimeoutError) Unwrap() error { return e.Err }

// ResponseParseError means a provider answered with a body we cannot read
type ResponseParseError struct {
	Provider string
	Err      error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("cannot parse %s response: %v", e.Provider, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// AddressNotFoundError means the geocoder found no match for the address
type AddressNotFoundError struct {
	Address string
}

func (e *AddressNotFoundError) Error() string {
	if e.Address == "" {
		return "no address given"
	}
	return fmt.Sprintf("address not found: %q", e.Address)
}
