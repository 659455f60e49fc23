package gmail

import (
	"mailbox_server/core/domain"

	"google.golang.org/api/gmail/v1"
)

func convertMessage(msg *gmail.Message, format domain.MessageFormat) *domain.MessageDetail {
	detail := &domain.MessageDetail{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.Payload == nil {
		return detail
	}

	detail.Headers = make([]domain.Header, 0, len(msg.Payload.Headers))
	for _, h := range msg.Payload.Headers {
		detail.Headers = append(detail.Headers, domain.Header{Name: h.Name, Value: h.Value})
	}
	if format != domain.FormatMetadata {
		detail.Payload = convertPart(msg.Payload)
	}
	return detail
}

// convertPart maps a MIME part to a payload node. Inline data takes
// precedence over child parts; a part with neither yields nil.
func convertPart(part *gmail.MessagePart) domain.PayloadNode {
	if part == nil {
		return nil
	}
	if part.Body != nil && part.Body.Data != "" {
		return &domain.LeafNode{MimeType: part.MimeType, Data: part.Body.Data}
	}
	if len(part.Parts) == 0 {
		return nil
	}

	children := make([]domain.PayloadNode, 0, len(part.Parts))
	for _, p := range part.Parts {
		children = append(children, convertPart(p))
	}
	return &domain.ContainerNode{MimeType: part.MimeType, Children: children}
}
