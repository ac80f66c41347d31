package verifier

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-errors/errors"

	"github.com/ehn-dcc-development/ehc-verify/common"
)

// PublicKey is the verification key material reconstructed from a trust list
// certificate. The set of variants is closed: EC and RSA.
type PublicKey interface {
	KeyType() string
	Algorithm() int

	sealed()
}

type ECPublicKey struct {
	CurveName string
	Curve     elliptic.Curve

	// X and Y are big-endian, at the curve's coordinate width
	X []byte
	Y []byte
}

func (pk *ECPublicKey) KeyType() string { return "EC" }
func (pk *ECPublicKey) Algorithm() int  { return common.ALG_ES256 }
func (pk *ECPublicKey) sealed()         {}

type RSAPublicKey struct {
	// N and E are minimal-length big-endian
	N []byte
	E []byte
}

func (pk *RSAPublicKey) KeyType() string { return "RSA" }
func (pk *RSAPublicKey) Algorithm() int  { return common.ALG_PS256 }
func (pk *RSAPublicKey) sealed()         {}

// The supported curve set is fixed and small, so a static table suffices.
// Names are matched case-insensitively, ignoring hyphens, underscores and
// spaces.
// https://tools.ietf.org/search/rfc4492#appendix-A
var curves = map[string]elliptic.Curve{
	"secp256r1":  elliptic.P256(),
	"prime256v1": elliptic.P256(),
	"p256":       elliptic.P256(),
	"secp384r1":  elliptic.P384(),
	"p384":       elliptic.P384(),
	"secp521r1":  elliptic.P521(),
	"p521":       elliptic.P521(),
}

var curveNameIgnore = strings.NewReplacer("-", "", "_", "", " ", "")

func curveByName(name string) (elliptic.Curve, error) {
	curve, ok := curves[strings.ToLower(curveNameIgnore.Replace(name))]
	if !ok {
		return nil, errors.WrapPrefix(ErrUnsupportedCurve, fmt.Sprintf("Unsupported curve: %s", name), 0)
	}

	return curve, nil
}

// ExtractPublicKey reconstructs the verification key material from a
// certificate's public key. EC coordinates are laid out big-endian at the
// curve's coordinate width; RSA values at their minimal width.
func ExtractPublicKey(cert *x509.Certificate) (PublicKey, error) {
	switch pk := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		curveName := pk.Curve.Params().Name
		curve, err := curveByName(curveName)
		if err != nil {
			return nil, err
		}

		coordinateSize := (curve.Params().BitSize + 7) / 8
		x := make([]byte, coordinateSize)
		y := make([]byte, coordinateSize)
		pk.X.FillBytes(x)
		pk.Y.FillBytes(y)

		return &ECPublicKey{CurveName: curveName, Curve: curve, X: x, Y: y}, nil

	case *rsa.PublicKey:
		e := big.NewInt(int64(pk.E))
		return &RSAPublicKey{N: pk.N.Bytes(), E: e.Bytes()}, nil

	default:
		msg := fmt.Sprintf("Unsupported public key type %T", cert.PublicKey)
		return nil, errors.WrapPrefix(ErrUnsupportedKeyType, msg, 0)
	}
}

// verifySignature checks the CWT signature against the reconstructed key.
// A cryptographic mismatch, a wrong algorithm binding or a malformed
// signature all yield false; none of them is an error.
func verifySignature(pk PublicKey, alg int, hash, signature []byte) bool {
	if alg != 0 && alg != pk.Algorithm() {
		return false
	}

	switch pk := pk.(type) {
	case *ECPublicKey:
		return verifyECDSASignature(pk, hash, signature)
	case *RSAPublicKey:
		return verifyRSASignature(pk, hash, signature)
	}

	return false
}

func verifyECDSASignature(pk *ECPublicKey, hash, signature []byte) bool {
	keyByteSize := (pk.Curve.Params().BitSize + 7) / 8
	if len(signature) != keyByteSize*2 {
		return false
	}

	ecdsaPk := &ecdsa.PublicKey{
		Curve: pk.Curve,
		X:     new(big.Int).SetBytes(pk.X),
		Y:     new(big.Int).SetBytes(pk.Y),
	}

	r := new(big.Int).SetBytes(signature[:keyByteSize])
	s := new(big.Int).SetBytes(signature[keyByteSize:])

	return ecdsa.Verify(ecdsaPk, hash, r, s)
}

func verifyRSASignature(pk *RSAPublicKey, hash, signature []byte) bool {
	e := new(big.Int).SetBytes(pk.E)
	if !e.IsInt64() || e.Int64() > int64(^uint32(0)) {
		return false
	}

	rsaPk := &rsa.PublicKey{
		N: new(big.Int).SetBytes(pk.N),
		E: int(e.Int64()),
	}

	return rsa.VerifyPSS(rsaPk, crypto.SHA256, hash, signature, nil) == nil
}
