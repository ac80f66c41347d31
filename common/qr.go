package common

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-errors/errors"
	"github.com/minvws/base45-go/eubase45"
)

const (
	QR_PREFIX = "HC1"

	// First byte of a zlib stream written at the default compression level
	ZLIB_MAGIC_START = 0x78
)

// DecodeQR turns the QR text of a credential into the CBOR bytes of its
// signed message. The HC1 prefix (with or without colon) is stripped, the
// remainder is base45 decoded, and inflated when it carries a zlib stream.
func DecodeQR(proofPrefixed []byte) ([]byte, error) {
	proofEUBase45 := stripPrefix(proofPrefixed)

	proof, err := eubase45.EUBase45Decode(proofEUBase45)
	if err != nil {
		msg := fmt.Sprintf("Could not base45 decode QR (%s)", err)
		return nil, errors.WrapPrefix(ErrInvalidEncoding, msg, 0)
	}

	if len(proof) == 0 || proof[0] != ZLIB_MAGIC_START {
		return proof, nil
	}

	br := bytes.NewReader(proof)
	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, errors.WrapPrefix(ErrDecompression, "Could not create zlib reader", 0)
	}
	defer zr.Close()

	proofCbor, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.WrapPrefix(ErrDecompression, "Could not decompress QR", 0)
	}

	return proofCbor, nil
}

// EncodeQR is the issuance mirror of DecodeQR: CBOR serialize the signed CWT
// with its COSE_Sign1 tag, zlib compress, base45 encode and prefix.
func EncodeQR(signedCWT *CWT) ([]byte, error) {
	proofCbor, err := cbor.Marshal(cbor.Tag{
		Number:  COSE_SIGN1_TAG,
		Content: signedCWT,
	})
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR serialize CWT", 0)
	}

	var proofCompressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&proofCompressed, flate.BestCompression)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not create zlib writer", 0)
	}

	_, err = zw.Write(proofCbor)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not write to zlib writer", 0)
	}

	err = zw.Close()
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not close zlib writer", 0)
	}

	proofEUBase45 := eubase45.EUBase45Encode(proofCompressed.Bytes())

	prefix := []byte(QR_PREFIX + ":")
	return append(prefix, proofEUBase45...), nil
}

func stripPrefix(proofPrefixed []byte) []byte {
	if !bytes.HasPrefix(proofPrefixed, []byte(QR_PREFIX)) {
		return proofPrefixed
	}

	proof := proofPrefixed[len(QR_PREFIX):]
	if len(proof) > 0 && proof[0] == ':' {
		proof = proof[1:]
	}

	return proof
}
