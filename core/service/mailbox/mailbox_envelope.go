// Package mailbox implements the mailbox sync loop, the confirmation responder
// and message composition.
package mailbox

import (
	"encoding/base64"
	"strings"

	"mailbox_server/core/domain"
)

// BuildEnvelope renders a raw message and encodes it with the URL-safe base64
// alphabet, unpadded, as required by the send endpoint.
//
// With inReplyTo set, the recipient and subject come from the original message
// and to/subject are ignored. Header values are written verbatim; CR or LF in
// a value yields a malformed envelope.
func BuildEnvelope(to, subject, body string, inReplyTo *domain.ReplyTarget) string {
	return base64.RawURLEncoding.EncodeToString([]byte(buildRawMessage(to, subject, body, inReplyTo)))
}

func buildRawMessage(to, subject, body string, inReplyTo *domain.ReplyTarget) string {
	var buf strings.Builder

	if inReplyTo != nil {
		buf.WriteString("To: " + inReplyTo.FromAddress + "\r\n")
		buf.WriteString("Subject: " + domain.ReplyPrefix + inReplyTo.Subject + "\r\n")
		buf.WriteString("In-Reply-To: " + inReplyTo.MessageID + "\r\n")
		buf.WriteString("References: " + inReplyTo.MessageID + "\r\n")
	} else {
		buf.WriteString("To: " + to + "\r\n")
		buf.WriteString("Subject: " + subject + "\r\n")
	}

	buf.WriteString("\r\n")
	buf.WriteString(body)

	return buf.String()
}
