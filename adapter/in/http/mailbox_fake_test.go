package http

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"mailbox_server/adapter/in/worker"
	"mailbox_server/core/domain"
	"mailbox_server/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const testToken = "good-token"

type fakeAuth struct {
	sess *domain.Session
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*domain.Session, error) {
	if token != testToken {
		return nil, errors.New("bad token")
	}
	return f.sess, nil
}

type fakeSync struct {
	mu         sync.Mutex
	snapshots  map[uuid.UUID]worker.Snapshot
	watched    []uuid.UUID
	unwatched  []uuid.UUID
	triggered  []uuid.UUID
	status     worker.TriggerStatus
	triggerErr error
}

func newFakeSync() *fakeSync {
	return &fakeSync{snapshots: make(map[uuid.UUID]worker.Snapshot), status: worker.TriggerStarted}
}

func (f *fakeSync) Watch(sess *domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, sess.ID)
	f.snapshots[sess.ID] = worker.Snapshot{InProgress: true, Polling: true}
}

func (f *fakeSync) Unwatch(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unwatched = append(f.unwatched, id)
	delete(f.snapshots, id)
}

func (f *fakeSync) Trigger(id uuid.UUID) (worker.TriggerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshots[id]; !ok {
		return "", worker.ErrUnknownSession
	}
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	f.triggered = append(f.triggered, id)
	return f.status, nil
}

func (f *fakeSync) Snapshot(id uuid.UUID) (worker.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[id]
	return snap, ok
}

type sentEmail struct {
	to, subject, body string
	draft             *domain.ReplyDraft
}

type fakeCompose struct {
	sent     []sentEmail
	drafts   map[string]*domain.ReplyDraft
	sendErr  error
	draftErr error
}

func (f *fakeCompose) SendEmail(_ context.Context, _ *domain.Session, to, subject, body string, draft *domain.ReplyDraft) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, body: body, draft: draft})
	return nil
}

func (f *fakeCompose) ReplyDraftFor(_ context.Context, _ *domain.Session, messageID string) (*domain.ReplyDraft, error) {
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	d, ok := f.drafts[messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return d, nil
}

type fakeLogin struct {
	sess        *domain.Session
	token       string
	loginErr    error
	completeErr error
	loggedOut   []uuid.UUID
	gotState    string
	gotCode     string
}

func (f *fakeLogin) BeginLogin(context.Context) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "https://accounts.example.com/auth?state=abc", nil
}

func (f *fakeLogin) CompleteLogin(_ context.Context, state, code string) (*domain.Session, string, error) {
	f.gotState, f.gotCode = state, code
	if f.completeErr != nil {
		return nil, "", f.completeErr
	}
	return f.sess, f.token, nil
}

func (f *fakeLogin) Logout(_ context.Context, id uuid.UUID) {
	f.loggedOut = append(f.loggedOut, id)
}

type fakeStreams struct {
	disconnected []string
}

func (f *fakeStreams) DisconnectSession(sessionID string) {
	f.disconnected = append(f.disconnected, sessionID)
}

func testSession() *domain.Session {
	return &domain.Session{ID: uuid.New(), Email: "me@example.com"}
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
}

func authed(req *nethttp.Request) *nethttp.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

// envelope mirrors response.Response with a raw data field.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, app *fiber.App, req *nethttp.Request) (int, envelope) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
	}
	return resp.StatusCode, env
}

func newRequest(method, target string, body io.Reader) *nethttp.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
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
		},
		Snippet: body,
		Payload: &domain.LeafNode{MimeType: "text/plain", Data: encode(body)},
	}
}
