package notifications_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"setgen/internal/notifications"
	"setgen/internal/testsupport"
)

type capturedPost struct {
	contentType string
	content     string
}

func newWebhookServer(t *testing.T, status int) (*httptest.Server, func() []capturedPost) {
	t.Helper()
	var (
		mu    sync.Mutex
		posts []capturedPost
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		mu.Lock()
		posts = append(posts, capturedPost{contentType: r.Header.Get("Content-Type"), content: payload["content"]})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedPost {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedPost(nil), posts...)
	}
}

func readMails(t *testing.T, dir string) []map[string]any {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read mail dir: %v", err)
	}
	var mails []map[string]any
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		var mail map[string]any
		if err := json.Unmarshal([]byte(testsupport.ReadFile(t, filepath.Join(dir, entry.Name()))), &mail); err != nil {
			t.Fatalf("decode mail %s: %v", entry.Name(), err)
		}
		mails = append(mails, mail)
	}
	return mails
}

func TestNewServiceWithoutSinksIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.WebhookURL = ""
	cfg.Notifications.MailEnabled = false
	svc := notifications.NewService(cfg, nil)
	if err := svc.Publish(context.Background(), notifications.EventTest, notifications.Payload{Title: "x"}); err != nil {
		t.Fatalf("noop Publish returned %v", err)
	}
	if _, err := os.Stat(cfg.Paths.MailDir); !os.IsNotExist(err) {
		t.Fatal("noop service must not create the mail dir")
	}
}

func TestWebhookReceivesSubjectAndBody(t *testing.T) {
	srv, posts := newWebhookServer(t, http.StatusNoContent)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.WebhookURL = srv.URL

	svc := notifications.NewService(cfg, nil)
	err := svc.Publish(context.Background(), notifications.EventTaskFailed, notifications.Payload{
		Title: "S1/English/db failed",
		Body:  "exit status 1",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got := posts()
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if got[0].contentType != "application/json" {
		t.Fatalf("unexpected content type %q", got[0].contentType)
	}
	if got[0].content != "setgen ERROR: S1/English/db failed\nexit status 1" {
		t.Fatalf("unexpected content %q", got[0].content)
	}
}

func TestWebhookErrorStatusIsReported(t *testing.T) {
	srv, _ := newWebhookServer(t, http.StatusBadRequest)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.WebhookURL = srv.URL
	err := notifications.NewService(cfg, nil).Publish(context.Background(), notifications.EventTest, notifications.Payload{Title: "ping"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDisabledEventsAreDropped(t *testing.T) {
	srv, posts := newWebhookServer(t, http.StatusNoContent)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.WebhookURL = srv.URL
	cfg.Notifications.RunSummary = false
	cfg.Notifications.Recovery = false

	svc := notifications.NewService(cfg, nil)
	ctx := context.Background()
	_ = svc.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{Title: "done"})
	_ = svc.Publish(ctx, notifications.EventRecoveryTriggered, notifications.Payload{Title: "recovered"})
	if n := len(posts()); n != 0 {
		t.Fatalf("expected disabled events to be dropped, got %d posts", n)
	}
	_ = svc.Publish(ctx, notifications.EventRunFailed, notifications.Payload{Title: "store unavailable"})
	if n := len(posts()); n != 1 {
		t.Fatalf("run failures are always delivered, got %d posts", n)
	}
}

func TestMailDropWritesJSONFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.MailEnabled = true

	svc := notifications.NewService(cfg, nil)
	long := strings.Repeat("word ", 60)
	if err := svc.Publish(context.Background(), notifications.EventSanityCheckFailed, notifications.Payload{
		Title: "duplicate   card\n" + long,
		Body:  "c1 appears twice",
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	mails := readMails(t, cfg.Paths.MailDir)
	if len(mails) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(mails))
	}
	subject := mails[0]["subject"].(string)
	if !strings.HasPrefix(subject, "setgen CHECK: duplicate card word") {
		t.Fatalf("subject not normalized: %q", subject)
	}
	if len(subject) != 203 || !strings.HasSuffix(subject, "...") {
		t.Fatalf("subject not truncated: %d %q", len(subject), subject)
	}
	if mails[0]["body"] != "c1 appears twice" || mails[0]["html"] != false {
		t.Fatalf("unexpected mail %#v", mails[0])
	}
}

func TestMailQuotaSendsSingleWarning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.MailEnabled = true
	cfg.Notifications.MailDailyQuota = 2

	svc := notifications.NewService(cfg, nil)
	for i := 0; i < 5; i++ {
		if err := svc.Publish(context.Background(), notifications.EventTest, notifications.Payload{Title: "ping"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	mails := readMails(t, cfg.Paths.MailDir)
	if len(mails) != 3 {
		t.Fatalf("expected 2 mails plus one quota warning, got %d", len(mails))
	}
	warnings := 0
	for _, mail := range mails {
		if strings.Contains(mail["subject"].(string), "Mail quota exceeded: 3/2") {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected exactly one quota warning, got %d", warnings)
	}
}

func TestSubjectPrefixes(t *testing.T) {
	cases := map[notifications.Event]string{
		notifications.EventTaskFailed:        "setgen ERROR: x",
		notifications.EventSanityCheckPassed: "setgen CHECK: x",
		notifications.EventRecoveryTriggered: "setgen RECOVERY: x",
		notifications.EventRunCompleted:      "setgen: x",
	}
	for event, want := range cases {
		if got := notifications.Subject(event, " x "); got != want {
			t.Fatalf("Subject(%s) = %q, want %q", event, got, want)
		}
	}
}

func TestSplitMessageRespectsLimitAndFences(t *testing.T) {
	var b strings.Builder
	b.WriteString("header\n```\n")
	for i := 0; i < 80; i++ {
		b.WriteString("line of code output that is reasonably long\n")
	}
	b.WriteString("```\nfooter")

	chunks := notifications.SplitMessage(b.String(), 500)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 500 {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(chunk))
		}
		if strings.Count(chunk, "```")%2 != 0 {
			t.Fatalf("chunk %d has unbalanced fences: %q", i, chunk)
		}
	}
	if !strings.HasPrefix(chunks[1], "```\n") {
		t.Fatalf("continuation chunk must reopen the fence: %q", chunks[1][:10])
	}
}

func TestSplitMessageCutsLongLinesAtSpaces(t *testing.T) {
	line := strings.Repeat("abcd ", 50)
	chunks := notifications.SplitMessage(line, 100)
	if len(chunks) < 3 {
		t.Fatalf("expected long line to be split, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(chunk))
		}
	}
	if strings.ReplaceAll(strings.Join(chunks, ""), " ", "") != strings.ReplaceAll(line, " ", "") {
		t.Fatalf("content lost while splitting")
	}
}
