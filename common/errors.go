package common

import "errors"

// Decode failure classes. These are plain sentinel values so that callers can
// classify wrapped errors with errors.Is, while the wrapping itself is done
// with go-errors to retain stack traces.
var (
	ErrInvalidEncoding  = errors.New("invalid base45 encoding")
	ErrDecompression    = errors.New("could not decompress credential")
	ErrMalformedMessage = errors.New("malformed signed message")
	ErrMissingKeyID     = errors.New("no key identifier in protected or unprotected header")
)
