package carrier

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"sort"
)

// VerifySignature implements the carrier's webhook signature algorithm: sort
// form parameters by key, concatenate key+value pairs in order, prepend the
// full request URL (scheme + host + path + query), HMAC-SHA1 with the auth
// token, base64 encode, and compare to the supplied signature using
// constant-time equality.
func VerifySignature(authToken, fullURL string, params map[string]string, signature string) bool {
	expected := ComputeSignature(authToken, fullURL, params)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// ComputeSignature computes the expected signature for a request, exposed
// separately from VerifySignature so callers (and tests) can construct
// signed requests without an extra round-trip through the comparison.
func ComputeSignature(authToken, fullURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := fullURL
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
