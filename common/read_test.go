package common

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadClaims(t *testing.T) {
	now := time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC)
	issuedAt := now.Add(-24 * time.Hour)
	expiresAt := now.Add(28 * 24 * time.Hour)

	payloadCbor := mustMarshal(t, map[int64]interface{}{
		CLAIM_ISSUER:     "AT",
		CLAIM_ISSUED_AT:  issuedAt.Unix(),
		CLAIM_EXPIRES_AT: expiresAt.Unix(),
		CLAIM_HEALTH_CLAIMS: map[int64]interface{}{
			1: map[string]interface{}{
				"ver": "1.3.0",
				"nam": map[string]interface{}{"fn": "Musterfrau"},
			},
		},
		99: "some unrecognized value",
	})

	claims, err := ReadClaims(payloadCbor, now)
	require.NoError(t, err)

	assert.Equal(t, "AT", claims.Issuer)
	assert.Equal(t, issuedAt, claims.IssuedAt)
	assert.Equal(t, expiresAt, claims.ExpirationTime)
	assert.True(t, claims.HasExpiry)
	assert.False(t, claims.Expired)

	require.NotNil(t, claims.HealthClaims)
	assert.Equal(t, "1.3.0", claims.HealthClaims["ver"])

	// Claims are ordered by code, and unknown codes are preserved
	codes := make([]int64, 0, len(claims.Claims))
	for _, claim := range claims.Claims {
		codes = append(codes, claim.Code)
	}
	assert.Equal(t, []int64{CLAIM_HEALTH_CLAIMS, CLAIM_ISSUER, CLAIM_EXPIRES_AT, CLAIM_ISSUED_AT, 99}, codes)

	unknown := claims.Claims[len(claims.Claims)-1]
	assert.Equal(t, "Claim 99 (unknown)", unknown.Name)
	assert.False(t, unknown.Known)
	assert.Equal(t, "some unrecognized value", unknown.Value)

	// Timestamp claims render as ISO-8601
	for _, claim := range claims.Claims {
		if claim.Code == CLAIM_EXPIRES_AT {
			assert.Equal(t, expiresAt.Format(time.RFC3339), claim.Value)
		}
	}
}

func TestReadClaimsExpired(t *testing.T) {
	now := time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC)

	payloadCbor := mustMarshal(t, map[int64]interface{}{
		CLAIM_EXPIRES_AT: now.Add(-time.Hour).Unix(),
	})

	claims, err := ReadClaims(payloadCbor, now)
	require.NoError(t, err)
	assert.True(t, claims.HasExpiry)
	assert.True(t, claims.Expired)
}

func TestReadClaimsFloatTimestamps(t *testing.T) {
	now := time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC)
	issuedAt := now.Add(-time.Hour)

	payloadCbor := mustMarshal(t, map[int64]interface{}{
		CLAIM_ISSUED_AT: float64(issuedAt.Unix()),
	})

	claims, err := ReadClaims(payloadCbor, now)
	require.NoError(t, err)
	assert.Equal(t, issuedAt, claims.IssuedAt)
}

func TestReadClaimsWithoutHealthClaims(t *testing.T) {
	payloadCbor := mustMarshal(t, map[int64]interface{}{
		CLAIM_ISSUER: "NL",
	})

	claims, err := ReadClaims(payloadCbor, time.Now())
	require.NoError(t, err)
	assert.Nil(t, claims.HealthClaims)
	assert.False(t, claims.HasExpiry)
}

func TestReadClaimsMalformedHealthClaims(t *testing.T) {
	payloadCbor := mustMarshal(t, map[int64]interface{}{
		CLAIM_HEALTH_CLAIMS: "not a container",
	})

	_, err := ReadClaims(payloadCbor, time.Now())
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestReadClaimsMalformedPayload(t *testing.T) {
	_, err := ReadClaims([]byte{0xff, 0xff}, time.Now())
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestMarshalClaimsJSON(t *testing.T) {
	doc := map[string]interface{}{
		"ver": "1.3.0",
		"nam": map[string]interface{}{"fn": "Musterfrau"},
	}

	docJson, err := MarshalClaimsJSON(doc)
	require.NoError(t, err)

	rendered := string(docJson)
	assert.Contains(t, rendered, "    \"ver\": \"1.3.0\"")

	// Keys are sorted by the encoder
	assert.Less(t, strings.Index(rendered, "\"nam\""), strings.Index(rendered, "\"ver\""))
}
