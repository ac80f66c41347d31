package common

import (
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-errors/errors"
)

const (
	COSE_SIGN1_TAG     = 18
	COSE_SIGN1_CONTEXT = "Signature1"

	ALG_ES256 = -7
	ALG_PS256 = -37
)

type CWT struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected CWTHeader
	Payload     []byte
	Signature   []byte
}

type CWTHeader struct {
	// KID is a pointer to a byte slice, so the entire struct can be compared with an empty value
	KID *[]byte `cbor:"4,keyasint,omitempty"`
	Alg int     `cbor:"1,keyasint,omitempty"`
}

type CWTPayload struct {
	Issuer         string `cbor:"1,keyasint"`
	ExpirationTime int64  `cbor:"4,keyasint"`
	IssuedAt       int64  `cbor:"6,keyasint"`

	HCert *RawHealthCertificate `cbor:"-260,keyasint"`
}

type RawHealthCertificate struct {
	// Halt unmarshalling here, so CWT verification can take place first
	DCC cbor.RawMessage `cbor:"1,keyasint"`
}

// UnmarshalCWT parses the CBOR COSE_Sign1 envelope of a credential. The
// message may or may not be wrapped in its CBOR tag; any other tag number is
// rejected.
func UnmarshalCWT(proofCbor []byte) (cwt *CWT, err error) {
	if len(proofCbor) == 0 {
		return nil, errors.WrapPrefix(ErrMalformedMessage, "Could not process empty message", 0)
	}

	if isCBORTag(proofCbor[0]) {
		var raw cbor.RawTag
		err = cbor.Unmarshal(proofCbor, &raw)
		if err != nil {
			return nil, errors.WrapPrefix(ErrMalformedMessage, "Could not CBOR unmarshal envelope tag", 0)
		}

		if raw.Number != COSE_SIGN1_TAG {
			msg := fmt.Sprintf("Unsupported envelope tag %d", raw.Number)
			return nil, errors.WrapPrefix(ErrMalformedMessage, msg, 0)
		}

		proofCbor = raw.Content
	}

	err = cbor.Unmarshal(proofCbor, &cwt)
	if err != nil || cwt == nil {
		return nil, errors.WrapPrefix(ErrMalformedMessage, "Could not CBOR unmarshal QR as CWT", 0)
	}

	return cwt, nil
}

// ProtectedHeader unmarshals the protected header byte string. An empty byte
// string is a valid empty header.
func (cwt *CWT) ProtectedHeader() (*CWTHeader, error) {
	if len(cwt.Protected) == 0 {
		return &CWTHeader{}, nil
	}

	var header *CWTHeader
	err := cbor.Unmarshal(cwt.Protected, &header)
	if err != nil {
		return nil, errors.WrapPrefix(ErrMalformedMessage, "Could not CBOR unmarshal protected header", 0)
	}

	if header == nil {
		header = &CWTHeader{}
	}

	return header, nil
}

// KID returns the effective key identifier: the protected header value when
// present, otherwise the unprotected header value.
func (cwt *CWT) KID() ([]byte, error) {
	protectedHeader, err := cwt.ProtectedHeader()
	if err != nil {
		return nil, err
	}

	if protectedHeader.KID != nil {
		return *protectedHeader.KID, nil
	}

	if cwt.Unprotected.KID != nil {
		return *cwt.Unprotected.KID, nil
	}

	return nil, errors.WrapPrefix(ErrMissingKeyID, "Could not find key identifier in CWT", 0)
}

// Alg returns the signature algorithm identifier from the protected header,
// falling back to the unprotected header.
func (cwt *CWT) Alg() (int, error) {
	protectedHeader, err := cwt.ProtectedHeader()
	if err != nil {
		return 0, err
	}

	if protectedHeader.Alg != 0 {
		return protectedHeader.Alg, nil
	}

	return cwt.Unprotected.Alg, nil
}

// SerializeAndHashForSignature builds the canonical COSE_Sign1 signing input
// (context, protected header, external data, payload) and hashes it with
// SHA-256.
func SerializeAndHashForSignature(protectedHeaderCbor, payloadCbor []byte) (hash []byte, err error) {
	toHash := []interface{}{
		COSE_SIGN1_CONTEXT,
		protectedHeaderCbor,
		[]byte{},
		payloadCbor,
	}

	serializedForSigning, err := cbor.Marshal(toHash)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR serialize for hash that is signed/verified", 0)
	}

	hashArr := sha256.Sum256(serializedForSigning)
	return hashArr[:], nil
}

// ConvertSignatureComponents lays r and s out as the fixed-width big-endian
// concatenation that COSE signatures use.
func ConvertSignatureComponents(r, s *big.Int, params *elliptic.CurveParams) []byte {
	keyByteSize := (params.BitSize + 7) / 8

	signature := make([]byte, keyByteSize*2)
	r.FillBytes(signature[:keyByteSize])
	s.FillBytes(signature[keyByteSize:])

	return signature
}

func isCBORTag(initialByte byte) bool {
	return initialByte>>5 == 6
}
