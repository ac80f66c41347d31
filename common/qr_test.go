package common

import (
	"bytes"
	"errors"
	"testing"

	"github.com/minvws/base45-go/eubase45"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase45RoundTrip(t *testing.T) {
	sequences := [][]byte{
		{},
		{0x00},
		{0x01, 0x02},
		{0xff, 0xfe, 0xfd},
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
		[]byte("arbitrary payload bytes of uneven length!"),
	}

	for _, sequence := range sequences {
		encoded := eubase45.EUBase45Encode(sequence)

		decoded, err := DecodeQR(encoded)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(sequence, decoded), "round trip mismatch for %x", sequence)
	}
}

func TestDecodeQRPrefixHandling(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	encoded := eubase45.EUBase45Encode(data)

	variants := [][]byte{
		encoded,
		append([]byte("HC1"), encoded...),
		append([]byte("HC1:"), encoded...),
	}

	for _, variant := range variants {
		decoded, err := DecodeQR(variant)
		require.NoError(t, err)
		assert.Equal(t, data, decoded)
	}
}

func TestDecodeQRInvalidEncoding(t *testing.T) {
	// Lowercase characters are outside the base45 alphabet
	_, err := DecodeQR([]byte("HC1:abc"))
	assert.True(t, errors.Is(err, ErrInvalidEncoding))

	// A trailing group of a single character is invalid
	_, err = DecodeQR([]byte("HC1:A"))
	assert.True(t, errors.Is(err, ErrInvalidEncoding))
}

func TestDecodeQRDecompressionError(t *testing.T) {
	// A zlib header followed by a truncated deflate stream
	corrupt := []byte{ZLIB_MAGIC_START, 0x9c, 0x00, 0x01, 0x02}
	encoded := eubase45.EUBase45Encode(corrupt)

	_, err := DecodeQR(encoded)
	assert.True(t, errors.Is(err, ErrDecompression))
}

func TestEncodeDecodeQRRoundTrip(t *testing.T) {
	kid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	cwt := &CWT{
		Protected: mustMarshalHeader(t, &CWTHeader{Alg: ALG_ES256, KID: &kid}),
		Payload:   []byte{0xa0},
		Signature: bytes.Repeat([]byte{0x42}, 64),
	}

	qr, err := EncodeQR(cwt)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(qr, []byte("HC1:")))

	proofCbor, err := DecodeQR(qr)
	require.NoError(t, err)

	decoded, err := UnmarshalCWT(proofCbor)
	require.NoError(t, err)

	assert.Equal(t, cwt.Protected, decoded.Protected)
	assert.Equal(t, cwt.Payload, decoded.Payload)
	assert.Equal(t, cwt.Signature, decoded.Signature)
}
