package issuer

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/go-errors/errors"

	"github.com/ehn-dcc-development/ehc-verify/common"
)

// Signer produces a COSE signature over a prepared hash, under a key that is
// identified by an 8-byte key id.
type Signer interface {
	Sign(hash []byte) ([]byte, error)
	KID() []byte
}

type Issuer struct {
	signer Signer
}

func New(signer Signer) *Issuer {
	return &Issuer{
		signer: signer,
	}
}

type IssueSpecification struct {
	Issuer         string
	IssuedAt       int64
	ExpirationTime int64

	DCC map[string]interface{}
}

// IssueQREncoded intentionally doesn't support all the different COSE bells
// and whistles, and only does one thing well: serialize health certificates
// for ECDSA / SHA-256 signing.
func (iss *Issuer) IssueQREncoded(spec *IssueSpecification) ([]byte, error) {
	signedCWT, err := iss.Issue(spec)
	if err != nil {
		return nil, err
	}

	return common.EncodeQR(signedCWT)
}

func (iss *Issuer) Issue(spec *IssueSpecification) (*common.CWT, error) {
	// Build and serialize the protected header
	kid := iss.signer.KID()
	header := &common.CWTHeader{
		Alg: common.ALG_ES256,
		KID: &kid,
	}

	headerCbor, err := cbor.Marshal(header)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR marshal CWT header", 0)
	}

	// Serialize the DCC separately, and then the rest of the payload
	dccCbor, err := cbor.Marshal(spec.DCC)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR marshal DCC", 0)
	}

	payload := &common.CWTPayload{
		Issuer:         spec.Issuer,
		ExpirationTime: spec.ExpirationTime,
		IssuedAt:       spec.IssuedAt,
		HCert: &common.RawHealthCertificate{
			DCC: dccCbor,
		},
	}

	payloadCbor, err := cbor.Marshal(payload)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR marshal CWT payload", 0)
	}

	// Hash the signing input and sign
	hash, err := common.SerializeAndHashForSignature(headerCbor, payloadCbor)
	if err != nil {
		return nil, err
	}

	signature, err := iss.signer.Sign(hash)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not sign CWT", 0)
	}

	return &common.CWT{
		Protected: headerCbor,
		Payload:   payloadCbor,
		Signature: signature,
	}, nil
}
