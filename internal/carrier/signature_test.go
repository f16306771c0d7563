package carrier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignaturePositiveCase(t *testing.T) {
	params := map[string]string{"CallSid": "CA1", "From": "+15550001"}
	url := "https://bridge.example.com/voice/inbound"
	sig := ComputeSignature("secret-token", url, params)

	assert.True(t, VerifySignature("secret-token", url, params, sig))
}

func TestVerifySignatureDiffersOnParamMutation(t *testing.T) {
	params := map[string]string{"CallSid": "CA1", "From": "+15550001"}
	url := "https://bridge.example.com/voice/inbound"
	sig := ComputeSignature("secret-token", url, params)

	mutated := map[string]string{"CallSid": "CA2", "From": "+15550001"}
	assert.False(t, VerifySignature("secret-token", url, mutated, sig))
}

func TestVerifySignatureDiffersOnURLMutation(t *testing.T) {
	params := map[string]string{"CallSid": "CA1"}
	sig := ComputeSignature("secret-token", "https://bridge.example.com/voice/inbound", params)

	assert.False(t, VerifySignature("secret-token", "https://bridge.example.com/voice/status", params, sig))
}

func TestVerifySignatureDiffersOnTokenMutation(t *testing.T) {
	params := map[string]string{"CallSid": "CA1"}
	url := "https://bridge.example.com/voice/inbound"
	sig := ComputeSignature("secret-token", url, params)

	assert.False(t, VerifySignature("different-token", url, params, sig))
}

func TestComputeSignatureIsOrderIndependent(t *testing.T) {
	url := "https://bridge.example.com/voice/inbound"
	a := ComputeSignature("tok", url, map[string]string{"A": "1", "B": "2"})
	b := ComputeSignature("tok", url, map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, a, b)
}
