package upbit

import (
	"crypto/sha512"
	"encoding/hex"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// signToken builds the bearer token for a signed Upbit request. The exchange
// verifies query_hash against a SHA512 digest of the exact encoded query
// string that was transmitted, so callers must pass the same encoding they
// put on the wire.
func signToken(accessKey, secretKey, rawQuery string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": accessKey,
		"nonce":      uuid.NewString(),
	}
	if rawQuery != "" {
		sum := sha512.Sum512([]byte(rawQuery))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}
