package verifier

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/go-errors/errors"

	"github.com/ehn-dcc-development/ehc-verify/common"
	"github.com/ehn-dcc-development/ehc-verify/trustlist"
)

type Verifier struct {
	store *trustlist.Store
}

func New(store *trustlist.Store) *Verifier {
	return &Verifier{
		store: store,
	}
}

// Result carries the verification outcome together with the resolved
// certificate's metadata, which is surfaced for diagnostics regardless of
// whether verification succeeded.
type Result struct {
	KID   []byte
	Entry *trustlist.Entry

	PublicKey          PublicKey
	SignatureAlgorithm string

	SignatureValid     bool
	CertificateExpired bool

	// Valid is SignatureValid && !CertificateExpired
	Valid bool
}

// VerifyQREncoded decodes the QR text of a credential and verifies it
// against the trust store.
func (v *Verifier) VerifyQREncoded(proofPrefixed []byte, now time.Time) (*Result, error) {
	proofCbor, err := common.DecodeQR(proofPrefixed)
	if err != nil {
		return nil, err
	}

	cwt, err := common.UnmarshalCWT(proofCbor)
	if err != nil {
		return nil, err
	}

	return v.Verify(cwt, now)
}

// Verify resolves the signing certificate by the CWT's effective key id,
// reconstructs its verification key, and checks the signature and the
// certificate's validity window. A cryptographic mismatch is reported in the
// result, not as an error.
func (v *Verifier) Verify(cwt *common.CWT, now time.Time) (*Result, error) {
	kid, err := cwt.KID()
	if err != nil {
		return nil, err
	}

	entry, ok := v.store.Get(kid)
	if !ok {
		msg := fmt.Sprintf("Key ID not found in trust list: %x", kid)
		return nil, errors.WrapPrefix(ErrUnknownKeyID, msg, 0)
	}

	expired := certificateExpired(entry.Certificate, now)

	pk, err := ExtractPublicKey(entry.Certificate)
	if err != nil {
		return nil, err
	}

	alg, err := cwt.Alg()
	if err != nil {
		return nil, err
	}

	hash, err := common.SerializeAndHashForSignature(cwt.Protected, cwt.Payload)
	if err != nil {
		return nil, err
	}

	signatureValid := verifySignature(pk, alg, hash, cwt.Signature)

	return &Result{
		KID:   kid,
		Entry: entry,

		PublicKey:          pk,
		SignatureAlgorithm: entry.Certificate.SignatureAlgorithm.String(),

		SignatureValid:     signatureValid,
		CertificateExpired: expired,

		Valid: signatureValid && !expired,
	}, nil
}

// certificateExpired checks the certificate's validity window. The upstream
// reference combined both bounds with AND, which can never hold; the intended
// test is the OR below. A zero bound is treated as unbounded.
func certificateExpired(cert *x509.Certificate, now time.Time) bool {
	if !cert.NotBefore.IsZero() && now.Before(cert.NotBefore) {
		return true
	}

	if !cert.NotAfter.IsZero() && now.After(cert.NotAfter) {
		return true
	}

	return false
}
