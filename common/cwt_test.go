package common

import (
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalCWTTagged(t *testing.T) {
	cwt := testCWT(t, true, false)

	cwtCbor, err := cbor.Marshal(cbor.Tag{Number: COSE_SIGN1_TAG, Content: cwt})
	require.NoError(t, err)

	decoded, err := UnmarshalCWT(cwtCbor)
	require.NoError(t, err)
	assert.Equal(t, cwt.Protected, decoded.Protected)
	assert.Equal(t, cwt.Payload, decoded.Payload)
}

func TestUnmarshalCWTUntagged(t *testing.T) {
	cwt := testCWT(t, true, false)

	cwtCbor, err := cbor.Marshal(cwt)
	require.NoError(t, err)

	_, err = UnmarshalCWT(cwtCbor)
	assert.NoError(t, err)
}

func TestUnmarshalCWTUnsupportedTag(t *testing.T) {
	cwt := testCWT(t, true, false)

	// Tag 98 is a COSE_Sign message, which is not a single signer envelope
	cwtCbor, err := cbor.Marshal(cbor.Tag{Number: 98, Content: cwt})
	require.NoError(t, err)

	_, err = UnmarshalCWT(cwtCbor)
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestUnmarshalCWTMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0xff, 0xff, 0xff},
		mustMarshal(t, map[string]int{"not": 1, "a": 2, "cwt": 3}),
	}

	for _, data := range cases {
		_, err := UnmarshalCWT(data)
		assert.True(t, errors.Is(err, ErrMalformedMessage), "expected malformed message for %x", data)
	}
}

func TestUnmarshalCWTTruncated(t *testing.T) {
	cwtCbor, err := cbor.Marshal(cbor.Tag{Number: COSE_SIGN1_TAG, Content: testCWT(t, true, false)})
	require.NoError(t, err)

	_, err = UnmarshalCWT(cwtCbor[:len(cwtCbor)-3])
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestEffectiveKID(t *testing.T) {
	protectedKID := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	unprotectedKID := []byte{2, 2, 2, 2, 2, 2, 2, 2}

	// Protected header wins
	cwt := testCWT(t, true, true)
	kid, err := cwt.KID()
	require.NoError(t, err)
	assert.Equal(t, protectedKID, kid)

	// Fall back to the unprotected header
	cwt = testCWT(t, false, true)
	kid, err = cwt.KID()
	require.NoError(t, err)
	assert.Equal(t, unprotectedKID, kid)

	// Neither header carries a key id
	cwt = testCWT(t, false, false)
	_, err = cwt.KID()
	assert.True(t, errors.Is(err, ErrMissingKeyID))
}

func TestProtectedHeaderEmpty(t *testing.T) {
	cwt := &CWT{Protected: []byte{}}

	header, err := cwt.ProtectedHeader()
	require.NoError(t, err)
	assert.Nil(t, header.KID)
	assert.Equal(t, 0, header.Alg)
}

func TestAlgFallsBackToUnprotected(t *testing.T) {
	cwt := &CWT{
		Protected:   []byte{},
		Unprotected: CWTHeader{Alg: ALG_PS256},
	}

	alg, err := cwt.Alg()
	require.NoError(t, err)
	assert.Equal(t, ALG_PS256, alg)
}

// testCWT builds a CWT with the key id placed in the protected and/or
// unprotected header.
func testCWT(t *testing.T, kidInProtected, kidInUnprotected bool) *CWT {
	t.Helper()

	protectedHeader := &CWTHeader{Alg: ALG_ES256}
	if kidInProtected {
		kid := []byte{1, 1, 1, 1, 1, 1, 1, 1}
		protectedHeader.KID = &kid
	}

	var unprotectedHeader CWTHeader
	if kidInUnprotected {
		kid := []byte{2, 2, 2, 2, 2, 2, 2, 2}
		unprotectedHeader.KID = &kid
	}

	return &CWT{
		Protected:   mustMarshalHeader(t, protectedHeader),
		Unprotected: unprotectedHeader,
		Payload:     []byte{0xa0},
		Signature:   make([]byte, 64),
	}
}

func mustMarshalHeader(t *testing.T, header *CWTHeader) []byte {
	t.Helper()

	headerCbor, err := cbor.Marshal(header)
	require.NoError(t, err)
	return headerCbor
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()

	data, err := cbor.Marshal(v)
	require.NoError(t, err)
	return data
}
