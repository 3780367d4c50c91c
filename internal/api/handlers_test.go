package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quillcast/quillmail/internal/domain"
	"github.com/quillcast/quillmail/internal/events"
	"github.com/quillcast/quillmail/internal/linkrewrite"
	emailsvc "github.com/quillcast/quillmail/internal/service/email"
	"github.com/quillcast/quillmail/internal/service/suppression"
)

type memEmailRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Email
}

func (m *memEmailRepo) Insert(_ context.Context, e *domain.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.rows[e.ID] = &cp
	return nil
}

func (m *memEmailRepo) Get(_ context.Context, id string) (*domain.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *memEmailRepo) GetByPostID(_ context.Context, postID string) (*domain.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.rows {
		if e.PostID == postID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memEmailRepo) MarkPending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = domain.EmailPending
	return nil
}

func (m *memEmailRepo) MarkFailed(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = domain.EmailFailed
	m.rows[id].Error = errMsg
	return nil
}

type staticPosts map[string]*domain.Post

func (s staticPosts) Get(_ context.Context, id string) (*domain.Post, error) { return s[id], nil }

type staticNewsletters map[string]*domain.Newsletter

func (s staticNewsletters) Get(_ context.Context, id string) (*domain.Newsletter, error) {
	return s[id], nil
}

type staticHeaders struct{}

func (staticHeaders) RenderHeaders(_ context.Context, post *domain.Post, nl *domain.Newsletter) (emailsvc.Headers, error) {
	return emailsvc.Headers{Subject: post.Title, From: nl.SenderEmail}, nil
}

type noopScheduler struct{}

func (noopScheduler) AddQueuedJob(_ context.Context, name, method string, _ interface{}) (*domain.Job, error) {
	return &domain.Job{ID: "j1", Name: name, Method: method}, nil
}

type memSuppRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.SuppressionEntry
}

func (m *memSuppRepo) Get(_ context.Context, email string) (*domain.SuppressionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[email]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *memSuppRepo) Upsert(_ context.Context, entry *domain.SuppressionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[entry.Email]; ok {
		if entry.Reason.Severity() < existing.Reason.Severity() {
			return nil
		}
	}
	cp := *entry
	m.rows[entry.Email] = &cp
	return nil
}

func (m *memSuppRepo) Remove(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, email)
	return nil
}

func (m *memSuppRepo) List(_ context.Context, limit, offset int) ([]domain.SuppressionEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SuppressionEntry
	for _, e := range m.rows {
		out = append(out, *e)
	}
	return out, len(out), nil
}

type memEventRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.MailEvent
}

func (m *memEventRepo) Insert(_ context.Context, evt *domain.MailEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[evt.ID]; ok {
		return false, nil
	}
	cp := *evt
	m.rows[evt.ID] = &cp
	return true, nil
}

type memStats struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *memStats) IncrementForMessage(_ context.Context, messageID string, typ domain.MailEventType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[messageID+"/"+string(typ)]++
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (b *recordingBus) Publish(evt events.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBus) all() []events.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.DomainEvent(nil), b.events...)
}

type testServer struct {
	router     http.Handler
	emailRepo  *memEmailRepo
	suppRepo   *memSuppRepo
	eventRepo  *memEventRepo
	stats      *memStats
	bus        *recordingBus
	rewriter   *linkrewrite.Rewriter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	emailRepo := &memEmailRepo{rows: make(map[string]*domain.Email)}
	suppRepo := &memSuppRepo{rows: make(map[string]*domain.SuppressionEntry)}
	eventRepo := &memEventRepo{rows: make(map[string]*domain.MailEvent)}
	stats := &memStats{counts: make(map[string]int)}
	bus := &recordingBus{}

	posts := staticPosts{
		"p1": {ID: "p1", Title: "Launch Notes", NewsletterID: "n1"},
		"p2": {ID: "p2", Title: "Old", NewsletterID: "n2"},
	}
	newsletters := staticNewsletters{
		"n1": {ID: "n1", Status: domain.NewsletterActive, SenderEmail: "news@example.com"},
		"n2": {ID: "n2", Status: domain.NewsletterArchived},
	}

	rewriter, err := linkrewrite.New("https://news.example.com", "https://example.com", "test-key", nil)
	if err != nil {
		t.Fatalf("rewriter: %v", err)
	}

	suppSvc := suppression.NewService(suppRepo)
	emailSvc := emailsvc.NewService(emailRepo, posts, newsletters, staticHeaders{}, noopScheduler{})
	processor := events.NewProcessor(eventRepo, stats, suppSvc, bus)
	handlers := NewHandlers(emailSvc, suppSvc, processor, rewriter, bus)

	return &testServer{
		router:    SetupRoutes(handlers, []string{"http://localhost:5173"}),
		emailRepo: emailRepo,
		suppRepo:  suppRepo,
		eventRepo: eventRepo,
		stats:     stats,
		bus:       bus,
		rewriter:  rewriter,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateEmail(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/emails", map[string]string{"post_id": "p1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var email domain.Email
	if err := json.Unmarshal(rec.Body.Bytes(), &email); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if email.Subject != "Launch Notes" || email.Status != domain.EmailPending {
		t.Errorf("email = %+v", email)
	}

	// Second send of the same post conflicts.
	rec = ts.do(t, http.MethodPost, "/api/emails", map[string]string{"post_id": "p1"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate send status = %d", rec.Code)
	}
}

func TestCreateEmail_ValidationStatuses(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodPost, "/api/emails", map[string]string{"post_id": "nope"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown post status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/emails", map[string]string{"post_id": "p2"}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("archived newsletter status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/emails", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing post_id status = %d", rec.Code)
	}
}

func TestRetryEmail_Statuses(t *testing.T) {
	ts := newTestServer(t)
	ts.emailRepo.rows["e1"] = &domain.Email{ID: "e1", Status: domain.EmailSubmitted}
	ts.emailRepo.rows["e2"] = &domain.Email{ID: "e2", Status: domain.EmailFailed}

	if rec := ts.do(t, http.MethodPost, "/api/emails/e1/retry", nil); rec.Code != http.StatusConflict {
		t.Errorf("submitted retry status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/emails/e2/retry", nil); rec.Code != http.StatusOK {
		t.Errorf("failed retry status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/emails/nope/retry", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown retry status = %d", rec.Code)
	}
}

func TestMailEventWebhook_SingleAndArray(t *testing.T) {
	ts := newTestServer(t)

	single := map[string]interface{}{
		"id": "evt-1", "type": "delivered", "messageId": "tx-1",
		"recipient": "a@example.com", "timestampMs": time.Now().UnixMilli(),
	}
	rec := ts.do(t, http.MethodPost, "/webhooks/mail-events", single)
	if rec.Code != http.StatusOK {
		t.Fatalf("single status = %d", rec.Code)
	}

	batch := []map[string]interface{}{
		{"id": "evt-2", "type": "complained", "recipient": "b@example.com"},
		{"id": "evt-1", "type": "delivered", "messageId": "tx-1", "recipient": "a@example.com"},
	}
	rec = ts.do(t, http.MethodPost, "/webhooks/mail-events", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("array status = %d body = %s", rec.Code, rec.Body.String())
	}

	if len(ts.eventRepo.rows) != 2 {
		t.Errorf("stored events = %d, want 2 (evt-1 deduplicated)", len(ts.eventRepo.rows))
	}
	if got := ts.stats.counts["tx-1/delivered"]; got != 1 {
		t.Errorf("delivered count = %d, want 1", got)
	}
	if entry := ts.suppRepo.rows["b@example.com"]; entry == nil || entry.Reason != domain.ReasonSpam {
		t.Errorf("complaint did not suppress: %+v", entry)
	}
}

func TestSuppressionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.suppRepo.rows["bad@example.com"] = &domain.SuppressionEntry{
		Email: "bad@example.com", Reason: domain.ReasonFailed, CreatedAt: time.Now(),
	}

	rec := ts.do(t, http.MethodGet, "/api/suppressions/bad@example.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var data domain.SuppressionData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !data.Suppressed || data.Info == nil || data.Info.Reason != domain.ReasonFailed {
		t.Errorf("data = %+v", data)
	}

	rec = ts.do(t, http.MethodPost, "/api/suppressions/bulk",
		map[string][]string{"emails": {"bad@example.com", "good@example.com"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk status = %d", rec.Code)
	}
	var bulk []domain.SuppressionData
	if err := json.Unmarshal(rec.Body.Bytes(), &bulk); err != nil {
		t.Fatalf("decode bulk: %v", err)
	}
	if len(bulk) != 2 || !bulk[0].Suppressed || bulk[1].Suppressed {
		t.Errorf("bulk = %+v", bulk)
	}

	rec = ts.do(t, http.MethodDelete, "/api/suppressions/bad@example.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, ok := ts.suppRepo.rows["bad@example.com"]; ok {
		t.Error("suppression not removed")
	}

	// Removing again stays successful (idempotent).
	if rec := ts.do(t, http.MethodDelete, "/api/suppressions/bad@example.com", nil); rec.Code != http.StatusOK {
		t.Errorf("repeat delete status = %d", rec.Code)
	}
}

var hrefRe = regexp.MustCompile(`href="([^"]+)"`)

func TestRedirect_RoundTrip(t *testing.T) {
	ts := newTestServer(t)

	html := `<a href="https://elsewhere.org/page?attribution_id=leak">out</a>`
	rewritten := ts.rewriter.RewriteHTML(html, "e1", "p1")
	match := hrefRe.FindStringSubmatch(rewritten)
	if match == nil {
		t.Fatalf("no href in %s", rewritten)
	}
	link, err := url.Parse(match[1])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}

	// Simulate the provider substituting the per-recipient token.
	path := link.Path + "?m=member-uuid-7"
	rec := ts.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://elsewhere.org/page") {
		t.Errorf("location = %s", loc)
	}
	if strings.Contains(loc, "attribution_id") || !strings.Contains(loc, "ref=example.com") {
		t.Errorf("external destination policy not applied: %s", loc)
	}

	evts := ts.bus.all()
	if len(evts) != 1 || evts[0].Type != events.DomainEmailClicked {
		t.Fatalf("events = %+v", evts)
	}
	if evts[0].EmailID != "e1" || evts[0].Recipient != "member-uuid-7" {
		t.Errorf("click event = %+v", evts[0])
	}
}

func TestRedirect_TamperedSignature(t *testing.T) {
	ts := newTestServer(t)

	rewritten := ts.rewriter.RewriteHTML(`<a href="https://elsewhere.org/x">out</a>`, "e1", "p1")
	match := hrefRe.FindStringSubmatch(rewritten)
	link, _ := url.Parse(match[1])

	parts := strings.Split(strings.TrimPrefix(link.Path, "/r/"), "/")
	if len(parts) != 2 {
		t.Fatalf("unexpected path %s", link.Path)
	}
	bad := fmt.Sprintf("/r/%s/%s", parts[0], "0000000000000000")
	if rec := ts.do(t, http.MethodGet, bad, nil); rec.Code != http.StatusNotFound {
		t.Errorf("tampered signature status = %d", rec.Code)
	}
}
