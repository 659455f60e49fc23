package mailbox

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"
)

const triggerBody = "Hello,\nPlease Reply \"Confirm\" To This Email to finish.\n"

func newTestSync(f *fakeClient) *SyncService {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	return NewSyncService(f, NewResponder(f, ""), &SyncConfig{
		Now: func() time.Time { return now },
	})
}

func confirmQuery() string { return ConfirmationQuery(DefaultConfirmSender) }

func TestRunSync_Partition(t *testing.T) {
	f := newFakeClient()
	f.add("", textMessage("r1", "Alice <alice@example.com>", "Hello", "hi"))
	f.add("", textMessage("s1", "Me <me@example.com>", "Outgoing", "sent by me"))
	f.add("", textMessage("r2", "bob@example.com", "Other", "yo"))

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	if len(result.Received)+len(result.Sent) != 3 {
		t.Fatalf("partition lost messages: received=%d sent=%d", len(result.Received), len(result.Sent))
	}
	if len(result.Sent) != 1 || result.Sent[0].ID != "s1" {
		t.Errorf("Sent = %v", ids(result.Sent))
	}
	if got := ids(result.Received); !slices.Equal(got, []string{"r1", "r2"}) {
		t.Errorf("Received = %v", got)
	}
}

func TestRunSync_AutoReplies(t *testing.T) {
	f := newFakeClient()
	f.add(confirmQuery(), textMessage("c1", DefaultConfirmSender, "Confirm your transfer", triggerBody))

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	if f.sentCount() != 1 {
		t.Fatalf("sent %d envelopes, want 1", f.sentCount())
	}
	e := decodeEnvelope(t, f.sent[0])
	if got := readBody(t, e); got != ConfirmBody {
		t.Errorf("reply body = %q, want %q", got, ConfirmBody)
	}
	if got := e.Header.Get("Subject"); got != "Re: Confirm your transfer" {
		t.Errorf("reply subject = %q", got)
	}
	if got := e.Header.Get("In-Reply-To"); got != "<c1@example.com>" {
		t.Errorf("In-Reply-To = %q", got)
	}
	if got := f.archivedIDs(); !slices.Equal(got, []string{"c1"}) {
		t.Errorf("archived = %v", got)
	}
	if !containsEntry(result.Logs, "auto-replied") {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestRunSync_AlreadyConfirmed(t *testing.T) {
	f := newFakeClient()
	f.add(confirmQuery(), textMessage("c1", DefaultConfirmSender, "Confirm your transfer", triggerBody))
	f.add(ConfirmedReplyQuery(DefaultConfirmSender, "Confirm your transfer"),
		textMessage("prev", "me@example.com", "Re: Confirm your transfer", "confirm"))

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	if f.sentCount() != 0 {
		t.Errorf("sent %d envelopes, want 0", f.sentCount())
	}
	if got := f.archivedIDs(); !slices.Equal(got, []string{"c1"}) {
		t.Errorf("archived = %v", got)
	}
	if !containsEntry(result.Logs, "already confirmed") {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestRunSync_NoTriggerStillArchives(t *testing.T) {
	f := newFakeClient()
	f.add(confirmQuery(), textMessage("c1", DefaultConfirmSender, "Newsletter", "nothing to see"))

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if f.sentCount() != 0 {
		t.Errorf("sent %d envelopes, want 0", f.sentCount())
	}
	if got := f.archivedIDs(); !slices.Equal(got, []string{"c1"}) {
		t.Errorf("archived = %v", got)
	}
	if !containsEntry(result.Logs, "ignored — no trigger phrase") {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestRunSync_FailureIsolation(t *testing.T) {
	f := newFakeClient()
	f.add(confirmQuery(), textMessage("c1", DefaultConfirmSender, "First", triggerBody))
	f.add(confirmQuery(), textMessage("c2", DefaultConfirmSender, "Second", triggerBody))
	f.listErr[ConfirmedReplyQuery(DefaultConfirmSender, "First")] = out.NewNetworkError("fake", "reset", errBoom)

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}

	if f.sentCount() != 1 {
		t.Errorf("sent %d envelopes, want 1", f.sentCount())
	}
	// The failed message stays in the inbox for the next pass.
	if got := f.archivedIDs(); !slices.Equal(got, []string{"c2"}) {
		t.Errorf("archived = %v, want [c2]", got)
	}
	if !containsEntry(result.Logs, `"First": failed`) {
		t.Errorf("logs = %v", result.Logs)
	}
	if last := result.Logs[len(result.Logs)-1]; last != CompletedEntry {
		t.Errorf("last entry = %q, want %q", last, CompletedEntry)
	}
}

func TestRunSync_AuthErrorAbortsPass(t *testing.T) {
	f := newFakeClient()
	f.listErr[confirmQuery()] = out.NewAuthError("fake", "credential rejected", nil)
	f.add("", textMessage("r1", "alice@example.com", "Hello", "hi"))

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if !out.IsAuthError(err) {
		t.Fatalf("RunSync() error = %v, want auth error", err)
	}
	if result == nil {
		t.Fatal("RunSync() result = nil")
	}
	if slices.Contains(f.queries, "") {
		t.Errorf("inbox listed after auth failure: queries = %v", f.queries)
	}
	if len(result.Received) != 0 || len(result.Sent) != 0 {
		t.Errorf("result has messages after auth failure")
	}
	if last := result.Logs[len(result.Logs)-1]; last != "authentication failed — sign in again" {
		t.Errorf("last entry = %q", last)
	}
}

func TestRunSync_ConfirmationFailureContinues(t *testing.T) {
	f := newFakeClient()
	f.listErr[confirmQuery()] = out.NewAPIError("fake", 400, "bad query", nil)
	f.add("", textMessage("r1", "alice@example.com", "Hello", "hi"))

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if len(result.Received) != 1 {
		t.Errorf("Received = %v", ids(result.Received))
	}
	if !containsEntry(result.Logs, "confirmation check failed") {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestRunSync_DetailFailureFailsBatch(t *testing.T) {
	f := newFakeClient()
	f.add("", textMessage("r1", "alice@example.com", "Hello", "hi"))
	f.add("", textMessage("r2", "bob@example.com", "Hey", "yo"))
	f.getErr["r2"] = out.NewNetworkError("fake", "timeout", errBoom)

	result, err := newTestSync(f).RunSync(context.Background(), testSession())
	if !out.IsNetworkError(err) {
		t.Fatalf("RunSync() error = %v, want network error", err)
	}
	if len(result.Received) != 0 {
		t.Errorf("partial batch returned: %v", ids(result.Received))
	}
	if containsEntry(result.Logs, CompletedEntry) {
		t.Errorf("completed entry recorded on failed pass: %v", result.Logs)
	}
}

func TestRunSync_Schedule(t *testing.T) {
	f := newFakeClient()
	svc := newTestSync(f)

	result, err := svc.RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if got := result.NextRunAt.Sub(result.FinishedAt); got != 30*time.Second {
		t.Errorf("next run in %v, want 30s", got)
	}
	if last := result.Logs[len(result.Logs)-1]; last != CompletedEntry {
		t.Errorf("last entry = %q", last)
	}
}

func TestRunSync_LogsResetEachPass(t *testing.T) {
	f := newFakeClient()
	f.add(confirmQuery(), textMessage("c1", DefaultConfirmSender, "Newsletter", "nothing"))
	svc := newTestSync(f)

	first, _ := svc.RunSync(context.Background(), testSession())
	second, _ := svc.RunSync(context.Background(), testSession())
	if len(second.Logs) != len(first.Logs) {
		t.Errorf("logs grew between passes: %v then %v", first.Logs, second.Logs)
	}
}

func TestRunSync_DetailConcurrency(t *testing.T) {
	f := newFakeClient()
	for _, id := range []string{"a", "b", "c", "d"} {
		f.add("", textMessage(id, "x@example.com", id, id))
	}
	svc := NewSyncService(f, nil, &SyncConfig{DetailConcurrency: 2})

	result, err := svc.RunSync(context.Background(), testSession())
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	// Order follows the listing.
	if got := ids(result.Received); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Errorf("Received = %v", got)
	}
}

func TestHasTriggerPhrase(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`please reply "confirm" to this email`, true},
		{`PLEASE REPLY "CONFIRM" TO THIS EMAIL`, true},
		{`Please reply confirm to this email`, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasTriggerPhrase(tt.body); got != tt.want {
			t.Errorf("HasTriggerPhrase(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestQueries(t *testing.T) {
	if got := ConfirmationQuery(DefaultConfirmSender); got != "from:relayer@emailwallet.org in:inbox" {
		t.Errorf("ConfirmationQuery() = %q", got)
	}
	want := `in:sent to:relayer@emailwallet.org subject:"Re: Hello" "confirm"`
	if got := ConfirmedReplyQuery(DefaultConfirmSender, "Hello"); got != want {
		t.Errorf("ConfirmedReplyQuery() = %q, want %q", got, want)
	}
}

func ids(details []*domain.MessageDetail) []string {
	res := make([]string, len(details))
	for i, d := range details {
		res[i] = d.ID
	}
	return res
}

func containsEntry(logs []string, substr string) bool {
	for _, l := range logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
