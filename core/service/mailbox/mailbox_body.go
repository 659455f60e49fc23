package mailbox

import (
	"encoding/base64"
	"strings"

	"mailbox_server/core/domain"
)

// ExtractBody flattens the payload tree of detail into one text blob.
// Container children are joined with "\n" depth-first, left to right, with no
// regard to part type, so html and attachment parts are included as well.
func ExtractBody(detail *domain.MessageDetail) string {
	if detail == nil {
		return ""
	}
	return extractNode(detail.Payload)
}

func extractNode(node domain.PayloadNode) string {
	switch n := node.(type) {
	case *domain.LeafNode:
		if n == nil {
			return ""
		}
		return decodeBodyData(n.Data)
	case *domain.ContainerNode:
		if n == nil {
			return ""
		}
		texts := make([]string, len(n.Children))
		for i, child := range n.Children {
			texts[i] = extractNode(child)
		}
		return strings.Join(texts, "\n")
	default:
		return ""
	}
}

// decodeBodyData reverses the envelope encoding. Padded and unpadded input are
// both accepted; undecodable data yields "".
func decodeBodyData(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
