package localsigner

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/go-errors/errors"

	"github.com/ehn-dcc-development/ehc-verify/common"
)

type LocalSigner struct {
	certificate *x509.Certificate
	key         *ecdsa.PrivateKey
	kid         []byte
}

// New derives the key id from the certificate's SHA-256 fingerprint. It
// doesn't do much sanity checking, as it isn't going to be used in production.
func New(cert *x509.Certificate, key *ecdsa.PrivateKey) *LocalSigner {
	certSum := sha256.Sum256(cert.Raw)

	return &LocalSigner{
		certificate: cert,
		key:         key,
		kid:         certSum[0:8],
	}
}

func NewFromPEM(pemCertBytes, pemKeyBytes []byte) (*LocalSigner, error) {
	// Load certificate
	pemCertBlock, _ := pem.Decode(pemCertBytes)
	if pemCertBlock == nil || pemCertBlock.Type != "CERTIFICATE" {
		return nil, errors.Errorf("Could not parse PEM as certificate")
	}

	cert, err := x509.ParseCertificate(pemCertBlock.Bytes)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse certificate inside PEM", 0)
	}

	// Load private key
	pemKeyBlock, _ := pem.Decode(pemKeyBytes)
	if pemKeyBlock == nil || pemKeyBlock.Type != "EC PRIVATE KEY" {
		return nil, errors.Errorf("Could not parse PEM as EC key")
	}

	key, err := x509.ParseECPrivateKey(pemKeyBlock.Bytes)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse key inside PEM", 0)
	}

	return New(cert, key), nil
}

func NewFromFile(pemCertPath, pemKeyPath string) (*LocalSigner, error) {
	pemCertBytes, err := os.ReadFile(pemCertPath)
	if err != nil {
		msg := fmt.Sprintf("Could not read PEM certificate file %s", pemCertPath)
		return nil, errors.WrapPrefix(err, msg, 0)
	}

	pemKeyBytes, err := os.ReadFile(pemKeyPath)
	if err != nil {
		msg := fmt.Sprintf("Could not read PEM key file %s", pemKeyPath)
		return nil, errors.WrapPrefix(err, msg, 0)
	}

	return NewFromPEM(pemCertBytes, pemKeyBytes)
}

func (ls *LocalSigner) KID() []byte {
	return ls.kid
}

func (ls *LocalSigner) Sign(hash []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, ls.key, hash)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not sign hash", 0)
	}

	return common.ConvertSignatureComponents(r, s, ls.key.Params()), nil
}

func (ls *LocalSigner) Certificate() *x509.Certificate {
	return ls.certificate
}
