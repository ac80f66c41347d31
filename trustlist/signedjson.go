package trustlist

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"

	"github.com/go-errors/errors"
	"go.uber.org/zap"
)

// Only document signer certificates are loaded from signed JSON lists
const certificateTypeDSC = "DSC"

type signedJSONBody struct {
	Certificates []signedJSONCertificate `json:"certificates"`
}

type signedJSONCertificate struct {
	KID             string `json:"kid"`
	Country         string `json:"country"`
	CertificateType string `json:"certificateType"`
	RawData         string `json:"rawData"`
}

// LoadSignedJSON builds a store from a signed JSON certificate list: one line
// of base64 signature, a newline, then the JSON body. When pk is given, the
// signature bytes are split in half into the r and s values of an ECDSA
// SHA-256 signature over the raw body bytes; verification failure rejects the
// whole list. Entries that are not of type DSC are skipped with a warning.
func LoadSignedJSON(data []byte, pk *ecdsa.PublicKey, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parts := bytes.SplitN(data, []byte("\n"), 2)
	if len(parts) != 2 {
		return nil, errors.Errorf("Could not split certificate list into signature and body")
	}

	signature, err := base64.StdEncoding.DecodeString(string(parts[0]))
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not base64 decode certificate list signature", 0)
	}

	body := parts[1]
	if pk != nil {
		err = verifyListSignature(pk, signature, body)
		if err != nil {
			return nil, err
		}
	}

	var parsed *signedJSONBody
	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not JSON unmarshal certificate list body", 0)
	}
	if parsed == nil {
		return nil, errors.Errorf("Could not process empty certificate list body")
	}

	store := NewStore()
	for _, cert := range parsed.Certificates {
		kid, err := base64.StdEncoding.DecodeString(cert.KID)
		if err != nil {
			return nil, errors.WrapPrefix(err, "Could not base64 decode certificate list kid", 0)
		}

		if cert.CertificateType != certificateTypeDSC {
			logger.Warn("Skipping certificate list entry with unknown certificateType",
				zap.String("certificateType", cert.CertificateType),
				zap.String("country", cert.Country),
				zap.String("kid", hex.EncodeToString(kid)))
			continue
		}

		certDer, err := base64.StdEncoding.DecodeString(cert.RawData)
		if err != nil {
			return nil, errors.WrapPrefix(err, "Could not base64 decode certificate list rawData", 0)
		}

		entry, err := NewEntry(kid, certDer)
		if err != nil {
			return nil, errors.WrapPrefix(err, "Could not load signed JSON certificate list entry", 0)
		}

		store.Add(entry)
	}

	return store, nil
}

// LoadPublicKeyPEM loads the detached EC verification key of a signed JSON
// certificate list.
func LoadPublicKeyPEM(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.Errorf("Could not parse PEM as public key")
	}

	pk, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse public key inside PEM", 0)
	}

	ecpk, ok := pk.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("Certificate list public key is not an EC public key")
	}

	return ecpk, nil
}

func verifyListSignature(pk *ecdsa.PublicKey, signature, body []byte) error {
	half := len(signature) / 2
	r := new(big.Int).SetBytes(signature[:half])
	s := new(big.Int).SetBytes(signature[half:])

	hash := sha256.Sum256(body)
	if !ecdsa.Verify(pk, hash[:], r, s) {
		msg := fmt.Sprintf("Invalid certificate list signature: %x", signature)
		return errors.WrapPrefix(ErrSignatureInvalid, msg, 0)
	}

	return nil
}
