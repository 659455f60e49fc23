package domain

import (
	"sync"
)

// =============================================================================
// Message Model
// =============================================================================

// Well-known header names. Lookups are exact and case-sensitive.
const (
	HeaderFrom      = "From"
	HeaderSubject   = "Subject"
	HeaderDate      = "Date"
	HeaderMessageID = "Message-ID"
)

type MessageFormat string

const (
	FormatFull     MessageFormat = "full"     // payload tree included
	FormatMetadata MessageFormat = "metadata" // headers and snippet only
)

// MessageSummary is a bare id returned by a list call.
type MessageSummary struct {
	ID string `json:"id"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PayloadNode is one node of a message body tree: either a *LeafNode carrying
// encoded data or a *ContainerNode with child nodes. A nil node has neither.
type PayloadNode interface {
	payloadNode()
}

// LeafNode holds URL-safe base64 body data as delivered by the mail service.
type LeafNode struct {
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

// ContainerNode holds the parts of a multipart body, in order.
type ContainerNode struct {
	MimeType string        `json:"mime_type,omitempty"`
	Children []PayloadNode `json:"children"`
}

func (*LeafNode) payloadNode()      {}
func (*ContainerNode) payloadNode() {}

// MessageDetail is a fetched message. It is never updated in place; each sync
// pass fetches a fresh copy.
type MessageDetail struct {
	ID       string      `json:"id"`
	ThreadID string      `json:"thread_id,omitempty"`
	Headers  []Header    `json:"headers"`
	Snippet  string      `json:"snippet"`
	Payload  PayloadNode `json:"payload,omitempty"`

	headerOnce sync.Once
	headerMap  map[string]string
}

// HeaderMap returns the headers keyed by exact name. When a name repeats the
// first value wins. Built once per detail.
func (m *MessageDetail) HeaderMap() map[string]string {
	m.headerOnce.Do(func() {
		m.headerMap = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			if _, seen := m.headerMap[h.Name]; !seen {
				m.headerMap[h.Name] = h.Value
			}
		}
	})
	return m.headerMap
}

// Header returns the value of the named header or "" when absent.
// "from" does not match "From".
func (m *MessageDetail) Header(name string) string {
	return m.HeaderMap()[name]
}

func (m *MessageDetail) From() string      { return m.Header(HeaderFrom) }
func (m *MessageDetail) Subject() string   { return m.Header(HeaderSubject) }
func (m *MessageDetail) Date() string      { return m.Header(HeaderDate) }
func (m *MessageDetail) MessageID() string { return m.Header(HeaderMessageID) }
