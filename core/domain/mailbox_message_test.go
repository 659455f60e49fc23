package domain

import "testing"

func TestMessageDetail_HeaderMap(t *testing.T) {
	d := &MessageDetail{Headers: []Header{
		{Name: "From", Value: "first@example.com"},
		{Name: "Subject", Value: "Hi"},
		{Name: "From", Value: "second@example.com"},
		{Name: "message-id", Value: "<lower@example.com>"},
	}}

	if got := d.From(); got != "first@example.com" {
		t.Errorf("From() = %q, want first occurrence", got)
	}
	if got := d.Subject(); got != "Hi" {
		t.Errorf("Subject() = %q", got)
	}
	// Lookups are case-sensitive.
	if got := d.MessageID(); got != "" {
		t.Errorf("MessageID() = %q, want empty", got)
	}
	if got := d.Header("message-id"); got != "<lower@example.com>" {
		t.Errorf(`Header("message-id") = %q`, got)
	}
}

func TestNewReplyDraft(t *testing.T) {
	d := &MessageDetail{
		Headers: []Header{
			{Name: HeaderFrom, Value: "Alice <alice@example.com>"},
			{Name: HeaderSubject, Value: "Lunch"},
			{Name: HeaderDate, Value: "Mon, 1 Jan 2024 10:00:00 +0000"},
			{Name: HeaderMessageID, Value: "<m1@example.com>"},
		},
		Snippet: "tomorrow?",
	}

	draft := NewReplyDraft(d)
	if draft.To != "Alice <alice@example.com>" {
		t.Errorf("To = %q", draft.To)
	}
	if draft.Subject != "Re: Lunch" {
		t.Errorf("Subject = %q", draft.Subject)
	}
	want := "\n\nOn Mon, 1 Jan 2024 10:00:00 +0000, Alice <alice@example.com> wrote:\n> tomorrow?"
	if draft.Body != want {
		t.Errorf("Body = %q, want %q", draft.Body, want)
	}

	target := draft.Target()
	if target.FromAddress != draft.To || target.Subject != "Lunch" || target.MessageID != "<m1@example.com>" {
		t.Errorf("Target() = %+v", target)
	}
}

func TestStatusLog(t *testing.T) {
	var l StatusLog
	l.Add("a")
	l.Add("b")

	entries := l.Entries()
	entries[0] = "mutated"
	if got := l.Entries(); got[0] != "a" || len(got) != 2 {
		t.Errorf("Entries() = %v", got)
	}

	l.Reset()
	if len(l.Entries()) != 0 {
		t.Errorf("Reset() left %v", l.Entries())
	}
}
