package verifier

import (
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurveByName(t *testing.T) {
	supported := map[string]elliptic.Curve{
		"secp256r1":   elliptic.P256(),
		"prime256v1":  elliptic.P256(),
		"P-256":       elliptic.P256(),
		"SECP 384 R1": elliptic.P384(),
		"secp_521_r1": elliptic.P521(),
		"P-521":       elliptic.P521(),
	}

	for name, expected := range supported {
		curve, err := curveByName(name)
		require.NoError(t, err, "curve %s", name)
		assert.Equal(t, expected, curve)
	}

	_, err := curveByName("brainpoolP256r1")
	assert.True(t, errors.Is(err, ErrUnsupportedCurve))
}

func TestExtractPublicKeyEC(t *testing.T) {
	now := time.Now()
	cert, key := createCertificate(t, now.Add(-time.Hour), now.Add(time.Hour))

	pk, err := ExtractPublicKey(cert)
	require.NoError(t, err)

	ec, ok := pk.(*ECPublicKey)
	require.True(t, ok)

	// Coordinates are laid out at the curve's full coordinate width
	assert.Len(t, ec.X, 32)
	assert.Len(t, ec.Y, 32)
	assert.Equal(t, key.PublicKey.X.FillBytes(make([]byte, 32)), ec.X)
	assert.Equal(t, "P-256", ec.CurveName)
}

func TestExtractPublicKeyRSA(t *testing.T) {
	now := time.Now()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := certificateTemplate(now.Add(-time.Hour), now.Add(time.Hour))
	der, err := x509.CreateCertificate(rand.Reader, template, template, &rsaKey.PublicKey, rsaKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pk, err := ExtractPublicKey(cert)
	require.NoError(t, err)

	rsaPk, ok := pk.(*RSAPublicKey)
	require.True(t, ok)

	// Minimal big-endian encodings
	assert.Len(t, rsaPk.N, 256)
	assert.Equal(t, []byte{0x01, 0x00, 0x01}, rsaPk.E)
}
