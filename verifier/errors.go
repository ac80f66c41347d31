package verifier

import "errors"

// Verification failure classes. Each is fatal for the certificate being
// verified, but must not abort a batch nor prevent claim decoding.
var (
	ErrUnknownKeyID       = errors.New("key id not found in trust list")
	ErrUnsupportedCurve   = errors.New("unsupported elliptic curve")
	ErrUnsupportedKeyType = errors.New("unsupported public key type")
)
