package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"setgen/internal/fileutil"
	"setgen/internal/logging"
)

const (
	maxSubjectLength = 200
	maxBodyBytes     = 10 * 1000 * 1000
	counterFile      = "mail_counter.json"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

type mailMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html"`
}

type mailCounter struct {
	Day     string `json:"day"`
	Value   int    `json:"value"`
	Allowed bool   `json:"allowed"`
}

type mailSink struct {
	dir         string
	counterPath string
	quota       int
	now         func() time.Time
	logger      *slog.Logger
	mu          sync.Mutex
}

func newMailSink(dir, stateDir string, quota int, logger *slog.Logger) *mailSink {
	if quota <= 0 {
		quota = 50
	}
	return &mailSink{
		dir:         dir,
		counterPath: filepath.Join(stateDir, counterFile),
		quota:       quota,
		now:         time.Now,
		logger:      logging.NewComponentLogger(logger, "mail"),
	}
}

func (m *mailSink) name() string { return "mail" }

func (m *mailSink) deliver(_ context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed, err := m.checkQuota()
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}
	return m.write(subject, body)
}

// checkQuota follows the daily counter: reset on a new day, refuse once the
// quota is reached and send a single warning mail when that first happens.
func (m *mailSink) checkQuota() (bool, error) {
	today := m.now().Format("2006-01-02")
	counter, err := m.readCounter()
	if err != nil || counter.Day != today {
		return true, m.saveCounter(mailCounter{Day: today, Allowed: true})
	}
	if !counter.Allowed {
		if counter.Value >= m.quota {
			return false, nil
		}
		counter.Allowed = true
		return true, m.saveCounter(counter)
	}
	if counter.Value >= m.quota {
		counter.Allowed = false
		if err := m.saveCounter(counter); err != nil {
			return false, err
		}
		message := "Mail quota exceeded: " + strconv.Itoa(counter.Value+1) + "/" + strconv.Itoa(m.quota)
		m.logger.Warn(message,
			logging.String(logging.FieldEventType, "mail_quota_exceeded"),
			logging.String(logging.FieldImpact, "further mail is dropped until tomorrow"),
		)
		return false, m.write("setgen WARNING: "+message, "")
	}
	return true, nil
}

func (m *mailSink) write(subject, body string) error {
	subject = whitespaceRun.ReplaceAllString(subject, " ")
	if utf8.RuneCountInString(subject) > maxSubjectLength {
		subject = string([]rune(subject)[:maxSubjectLength]) + "..."
	}
	if !isASCII(subject) {
		subject = mime.BEncoding.Encode("utf-8", subject)
	}
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	name := fmt.Sprintf("%d_%s", m.now().Unix(), uuid.NewString())
	data, err := json.Marshal(mailMessage{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(m.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write mail: %w", err)
	}
	if counter, err := m.readCounter(); err == nil {
		counter.Value++
		return m.saveCounter(counter)
	}
	return nil
}

func (m *mailSink) readCounter() (mailCounter, error) {
	data, err := os.ReadFile(m.counterPath)
	if err != nil {
		return mailCounter{}, err
	}
	var counter mailCounter
	if err := json.Unmarshal(data, &counter); err != nil {
		return mailCounter{}, errors.New("corrupt mail counter")
	}
	return counter, nil
}

func (m *mailSink) saveCounter(counter mailCounter) error {
	if err := fileutil.WriteJSONAtomic(m.counterPath, counter); err != nil {
		return fmt.Errorf("save mail counter: %w", err)
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
