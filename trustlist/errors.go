package trustlist

import "errors"

// Trust list integrity violations. Both are fail-closed: the offending source
// is rejected as a whole rather than admitting unverifiable entries.
var (
	ErrKeyIDMismatch    = errors.New("key id does not match certificate fingerprint")
	ErrSignatureInvalid = errors.New("trust list signature does not verify")
)
