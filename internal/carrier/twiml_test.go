package carrier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSayHangupTwiML(t *testing.T) {
	got := SayHangupTwiML("Your package has arrived.", "alice", "en-US")
	assert.Contains(t, got, `<Say voice="alice" language="en-US">Your package has arrived.</Say>`)
	assert.Contains(t, got, "<Hangup/>")
	assert.True(t, strings.HasPrefix(got, `<?xml version="1.0" encoding="UTF-8"?><Response>`))
}

func TestMediaStreamTwiMLIncludesInboundTrack(t *testing.T) {
	got := MediaStreamTwiML("wss://host/voice/stream")
	assert.Contains(t, got, `<Stream url="wss://host/voice/stream" track="inbound_track"/>`)
	assert.Contains(t, got, "<Connect>")
}

func TestGatherTwiMLNestsSay(t *testing.T) {
	got := GatherTwiML("How can I help?", "alice", "en-US", "https://host/voice/gather", 5)
	assert.Contains(t, got, `<Gather input="speech" method="POST" timeout="5" speechTimeout="auto" language="en-US" action="https://host/voice/gather">`)
	assert.Contains(t, got, `<Say voice="alice" language="en-US">How can I help?</Say>`)
}

func TestXMLEscaping(t *testing.T) {
	got := SayHangupTwiML(`Tom & Jerry's "quote" <tag>`, "alice", "en-US")
	assert.Contains(t, got, "Tom &amp; Jerry&apos;s &quot;quote&quot; &lt;tag&gt;")
}

func TestHangupTwiML(t *testing.T) {
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`, HangupTwiML())
}

func TestRejectTwiMLNoReason(t *testing.T) {
	assert.Contains(t, RejectTwiML(""), "<Reject/>")
}

func TestRejectTwiMLWithReason(t *testing.T) {
	assert.Contains(t, RejectTwiML("busy"), `<Reject reason="busy"/>`)
}
