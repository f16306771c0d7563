// Package carrier talks to the telephony carrier: it builds TwiML responses,
// verifies webhook signatures, and places/manages calls over the carrier's
// REST API.
package carrier

import (
	"fmt"
	"strings"
)

// escapeXML replaces the five XML special characters. encoding/xml's own
// marshaling escapes attribute and text content differently than TwiML
// examples show (it prefers numeric entities for quotes); building the
// fixed, small set of TwiML verbs by hand keeps the exact escaping the spec
// calls for and avoids dragging in a struct per verb.
func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

// SayHangupTwiML builds the one-shot "speak and hang up" response used by
// make_call.
func SayHangupTwiML(text, voice, language string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<Response>")
	writeSay(&b, text, voice, language)
	b.WriteString("<Hangup/>")
	b.WriteString("</Response>")
	return b.String()
}

// MediaStreamTwiML builds the response that opens a bidirectional media
// WebSocket back to the bridge, used by make_conversation_call and
// handle_inbound_call.
func MediaStreamTwiML(streamURL string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<Response>")
	b.WriteString("<Connect>")
	fmt.Fprintf(&b, `<Stream url="%s" track="inbound_track"/>`, escapeXML(streamURL))
	b.WriteString("</Connect>")
	b.WriteString("</Response>")
	return b.String()
}

// GatherTwiML builds a response that prompts with <Say> nested inside
// <Gather>, re-opening a gather loop for the non-media-stream path.
func GatherTwiML(prompt, voice, language, actionURL string, timeoutSeconds int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<Response>")
	fmt.Fprintf(&b, `<Gather input="speech" method="POST" timeout="%d" speechTimeout="auto" language="%s" action="%s">`,
		timeoutSeconds, escapeXML(language), escapeXML(actionURL))
	writeSay(&b, prompt, voice, language)
	b.WriteString("</Gather>")
	b.WriteString("</Response>")
	return b.String()
}

// HangupTwiML builds a bare hangup response.
func HangupTwiML() string {
	return `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
}

// RedirectTwiML builds a response that redirects call control to another URL.
func RedirectTwiML(url string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Redirect>%s</Redirect></Response>`, escapeXML(url))
}

// RejectTwiML builds a response that rejects the call without answering it.
func RejectTwiML(reason string) string {
	if reason == "" {
		return `<?xml version="1.0" encoding="UTF-8"?><Response><Reject/></Response>`
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Reject reason="%s"/></Response>`, escapeXML(reason))
}

// RecordTwiML builds a response that records the call and posts the
// recording to actionURL. Available per spec §6 but minimally used — the
// bridge does not persist recordings itself.
func RecordTwiML(actionURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Record action="%s"/></Response>`, escapeXML(actionURL))
}

// DialTwiML builds a response that bridges the call to another number.
func DialTwiML(number string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Dial>%s</Dial></Response>`, escapeXML(number))
}

func writeSay(b *strings.Builder, text, voice, language string) {
	fmt.Fprintf(b, `<Say voice="%s" language="%s">%s</Say>`, escapeXML(voice), escapeXML(language), escapeXML(text))
}
