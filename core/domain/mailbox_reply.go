package domain

import "fmt"

// ReplyPrefix is prepended to the original subject of every reply.
const ReplyPrefix = "Re: "

// ReplyTarget carries what an envelope needs to thread a reply.
type ReplyTarget struct {
	FromAddress string `json:"from_address"`
	Subject     string `json:"subject"`
	MessageID   string `json:"message_id"`
}

// ReplyDraft is a reply being composed. It lives only until it is sent or
// discarded.
type ReplyDraft struct {
	To              string `json:"to"`
	Subject         string `json:"subject"`
	OriginalSubject string `json:"original_subject"`
	MessageID       string `json:"message_id"`
	Body            string `json:"body"`
}

// NewReplyDraft pre-fills a reply to detail with a quoted preview.
func NewReplyDraft(detail *MessageDetail) *ReplyDraft {
	from := detail.From()
	subject := detail.Subject()
	return &ReplyDraft{
		To:              from,
		Subject:         ReplyPrefix + subject,
		OriginalSubject: subject,
		MessageID:       detail.MessageID(),
		Body:            fmt.Sprintf("\n\nOn %s, %s wrote:\n> %s", detail.Date(), from, detail.Snippet),
	}
}

// Target returns the threading fields of the draft.
func (d *ReplyDraft) Target() *ReplyTarget {
	return &ReplyTarget{
		FromAddress: d.To,
		Subject:     d.OriginalSubject,
		MessageID:   d.MessageID,
	}
}

// ReplyTargetOf threads directly on a fetched message.
func ReplyTargetOf(detail *MessageDetail) *ReplyTarget {
	return &ReplyTarget{
		FromAddress: detail.From(),
		Subject:     detail.Subject(),
		MessageID:   detail.MessageID(),
	}
}
