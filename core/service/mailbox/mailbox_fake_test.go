package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"mailbox_server/core/domain"
	"mailbox_server/core/port/out"

	"github.com/google/uuid"
)

// fakeClient is an in-memory out.MailboxClient.
type fakeClient struct {
	mu sync.Mutex

	lists   map[string][]string // query -> ids
	details map[string]*domain.MessageDetail

	listErr    map[string]error // query -> error
	getErr     map[string]error // id -> error
	sendErr    error
	archiveErr map[string]error // id -> error

	queries  []string
	sent     []string
	archived []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		lists:      make(map[string][]string),
		details:    make(map[string]*domain.MessageDetail),
		listErr:    make(map[string]error),
		getErr:     make(map[string]error),
		archiveErr: make(map[string]error),
	}
}

var _ out.MailboxClient = (*fakeClient)(nil)

func (f *fakeClient) add(query string, d *domain.MessageDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[query] = append(f.lists[query], d.ID)
	f.details[d.ID] = d
}

func (f *fakeClient) ListMessageIDs(_ context.Context, _ *domain.Session, query string, maxResults int) ([]domain.MessageSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.listErr[query]; err != nil {
		return nil, err
	}
	ids := f.lists[query]
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	res := make([]domain.MessageSummary, len(ids))
	for i, id := range ids {
		res[i] = domain.MessageSummary{ID: id}
	}
	return res, nil
}

func (f *fakeClient) GetMessageDetail(_ context.Context, _ *domain.Session, id string, _ domain.MessageFormat) (*domain.MessageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	d, ok := f.details[id]
	if !ok {
		return nil, out.NewAPIError("fake", 404, "not found", nil)
	}
	return d, nil
}

func (f *fakeClient) SendRawMessage(_ context.Context, _ *domain.Session, raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, raw)
	return nil
}

func (f *fakeClient) ArchiveMessage(_ context.Context, _ *domain.Session, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.archiveErr[id]; err != nil {
		return err
	}
	f.archived = append(f.archived, id)
	return nil
}

func (f *fakeClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeClient) archivedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.archived...)
}

func testSession() *domain.Session {
	return &domain.Session{ID: uuid.New(), Email: "me@example.com"}
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func textMessage(id, from, subject, body string) *domain.MessageDetail {
	return &domain.MessageDetail{
		ID: id,
		Headers: []domain.Header{
			{Name: domain.HeaderFrom, Value: from},
			{Name: domain.HeaderSubject, Value: subject},
			{Name: domain.HeaderDate, Value: "Mon, 1 Jan 2024 10:00:00 +0000"},
			{Name: domain.HeaderMessageID, Value: "<" + id + "@example.com>"},
		},
		Snippet: body,
		Payload: &domain.LeafNode{MimeType: "text/plain", Data: encode(body)},
	}
}

var errBoom = errors.New("boom")
