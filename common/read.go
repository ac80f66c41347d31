package common

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-errors/errors"
)

const (
	CLAIM_ISSUER        = 1
	CLAIM_EXPIRES_AT    = 4
	CLAIM_ISSUED_AT     = 6
	CLAIM_HEALTH_CLAIMS = -260

	// Field of the health claims container that holds the actual document
	HEALTH_CLAIMS_DOCUMENT_FIELD = 1
)

var claimNames = map[int64]string{
	CLAIM_ISSUER:        "Issuer",
	CLAIM_EXPIRES_AT:    "Expires At",
	CLAIM_ISSUED_AT:     "Issued At",
	CLAIM_HEALTH_CLAIMS: "Health Claims",
}

// Claim is a single payload field, keyed by its claim code. Unknown codes get
// a synthesized name and keep their raw value.
type Claim struct {
	Code  int64       `json:"code"`
	Name  string      `json:"name"`
	Known bool        `json:"known"`
	Value interface{} `json:"value"`
}

type DecodedClaims struct {
	// Claims holds every payload field, ordered by claim code
	Claims []Claim `json:"claims"`

	Issuer         string    `json:"issuer"`
	IssuedAt       time.Time `json:"issuedAt"`
	ExpirationTime time.Time `json:"expirationTime"`
	HasExpiry      bool      `json:"hasExpiry"`
	Expired        bool      `json:"expired"`

	// HealthClaims is the extracted document of the -260 claim
	HealthClaims map[string]interface{} `json:"healthClaims"`
}

// ReadClaims decodes the payload of a CWT independently of signature
// verification. Timestamp claims are converted from epoch seconds, the health
// claims document is extracted, and unrecognized claim codes are preserved.
func ReadClaims(payloadCbor []byte, now time.Time) (*DecodedClaims, error) {
	var rawClaims map[int64]interface{}
	err := cbor.Unmarshal(payloadCbor, &rawClaims)
	if err != nil {
		return nil, errors.WrapPrefix(ErrMalformedMessage, "Could not CBOR unmarshal CWT payload", 0)
	}

	codes := make([]int64, 0, len(rawClaims))
	for code := range rawClaims {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	decoded := &DecodedClaims{}
	for _, code := range codes {
		value := rawClaims[code]

		name, known := claimNames[code]
		if !known {
			name = fmt.Sprintf("Claim %d (unknown)", code)
		}

		switch code {
		case CLAIM_ISSUER:
			if issuer, ok := value.(string); ok {
				decoded.Issuer = issuer
			}

		case CLAIM_ISSUED_AT:
			if ts, ok := claimTime(value); ok {
				decoded.IssuedAt = ts
				value = ts.Format(time.RFC3339)
			}

		case CLAIM_EXPIRES_AT:
			if ts, ok := claimTime(value); ok {
				decoded.ExpirationTime = ts
				decoded.HasExpiry = true
				decoded.Expired = !now.Before(ts)
				value = ts.Format(time.RFC3339)
			}

		case CLAIM_HEALTH_CLAIMS:
			doc := extractHealthClaimsDocument(value)
			if doc == nil {
				return nil, errors.WrapPrefix(ErrMalformedMessage, "Could not process empty hcert structure", 0)
			}

			decoded.HealthClaims = doc
			value = doc
		}

		decoded.Claims = append(decoded.Claims, Claim{Code: code, Name: name, Known: known, Value: value})
	}

	return decoded, nil
}

// MarshalClaimsJSON renders the health claims document as indented JSON.
// Object keys are sorted by the encoder.
func MarshalClaimsJSON(doc map[string]interface{}) ([]byte, error) {
	docJson, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not JSON marshal health claims", 0)
	}

	return docJson, nil
}

// The health claims value is a container keyed by small integers; field 1
// holds the document itself.
func extractHealthClaimsDocument(value interface{}) map[string]interface{} {
	container, ok := value.(map[interface{}]interface{})
	if !ok {
		return nil
	}

	for key, val := range container {
		code, ok := claimCode(key)
		if !ok || code != HEALTH_CLAIMS_DOCUMENT_FIELD {
			continue
		}

		if doc, ok := val.(map[interface{}]interface{}); ok {
			return fixMap(doc)
		}
	}

	return nil
}

func claimTime(value interface{}) (time.Time, bool) {
	switch ts := value.(type) {
	case int64:
		return time.Unix(ts, 0).UTC(), true
	case uint64:
		return time.Unix(int64(ts), 0).UTC(), true
	case float64:
		return time.Unix(int64(ts), 0).UTC(), true
	}

	return time.Time{}, false
}

func claimCode(key interface{}) (int64, bool) {
	switch code := key.(type) {
	case int64:
		return code, true
	case uint64:
		return int64(code), true
	}

	return 0, false
}

func fixMap(val map[interface{}]interface{}) map[string]interface{} {
	res := map[string]interface{}{}
	for k, v := range val {
		switch tk := k.(type) {
		case string:
			switch tv := v.(type) {
			case map[interface{}]interface{}:
				res[tk] = fixMap(tv)
			case []interface{}:
				res[tk] = fixSlice(tv)
			default:
				res[tk] = v
			}
		}
	}

	return res
}

func fixSlice(val []interface{}) []interface{} {
	var res []interface{}
	for _, v := range val {
		switch tv := v.(type) {
		case map[interface{}]interface{}:
			res = append(res, fixMap(tv))
		case []interface{}:
			res = append(res, fixSlice(tv))
		default:
			res = append(res, v)
		}
	}

	return res
}
