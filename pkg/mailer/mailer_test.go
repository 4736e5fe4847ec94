package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/report"
)

func sample(remaining string) *report.Report {
	from := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	return &report.Report{
		Window:    api.DateWindow{From: from, To: from.AddDate(0, 0, 7), Mode: api.ModeWeekly},
		Budget:    api.BudgetInfo{Amount: decimal.NewFromInt(200), Days: 7},
		Spent:     decimal.NewFromInt(200).Sub(decimal.RequireFromString(remaining)),
		Remaining: decimal.RequireFromString(remaining),
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		remaining string
		want      string
	}{
		{"148.3", "Budget brief 2025-11-20 to 2025-11-26: 148.30 left"},
		{"0", "Budget brief 2025-11-20 to 2025-11-26: 0.00 left"},
		{"-30", "Budget brief 2025-11-20 to 2025-11-26: over by 30.00"},
	}
	for _, tc := range tests {
		if got := Subject(sample(tc.remaining)); got != tc.want {
			t.Errorf("Subject(%s): got %q, want %q", tc.remaining, got, tc.want)
		}
	}
}

func TestCompose(t *testing.T) {
	msg, err := Compose(sample("10"), "Steady week.", "me@example.com", "you@example.com")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if msg.From != "me@example.com" || msg.To != "you@example.com" {
		t.Errorf("addresses: got %s -> %s", msg.From, msg.To)
	}
	if !strings.Contains(msg.Text, "Steady week.") || !strings.Contains(msg.HTML, "<p>Steady week.</p>") {
		t.Error("commentary missing from a body")
	}
}

func TestNewProviders(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: ProviderNone}, nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("none: got %v, want ErrDisabled", err)
	}
	if _, err := New(context.Background(), Config{Provider: "pigeon"}, nil); err == nil {
		t.Error("unknown provider: expected error")
	}
	if _, err := New(context.Background(), Config{Provider: ProviderMailgun}, nil); err == nil {
		t.Error("mailgun without keys: expected error")
	}
	if _, err := New(context.Background(), Config{Provider: ProviderGmail}, nil); err == nil {
		t.Error("gmail without client: expected error")
	}
	s, err := New(context.Background(), Config{Provider: ProviderMailgun, MailgunDomain: "mg.example.com", MailgunAPIKey: "key"}, nil)
	if err != nil || s == nil {
		t.Errorf("mailgun: got %v, %v", s, err)
	}
}

func TestGmailSend(t *testing.T) {
	var got gmail.Message
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg-1"}`)
	}))
	defer srv.Close()

	g, err := NewGmail(context.Background(), srv.Client(), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewGmail: %v", err)
	}
	msg := Message{From: "me@example.com", To: "you@example.com", Subject: "Budget brief £", Text: "plain body", HTML: "<b>html body</b>"}
	if err := g.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/users/me/messages/send") {
		t.Errorf("path: got %q", gotPath)
	}
	raw, err := base64.URLEncoding.DecodeString(got.Raw)
	if err != nil {
		t.Fatalf("decoding raw: %v", err)
	}
	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("parsing message: %v", err)
	}
	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	if err != nil || subject != "Budget brief £" {
		t.Errorf("subject: got %q, %v", subject, err)
	}

	_, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("content type: %v", err)
	}
	mr := multipart.NewReader(parsed.Body, params["boundary"])
	var bodies []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		enc, _ := io.ReadAll(part)
		dec, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(enc), "\r\n", ""))
		if err != nil {
			t.Fatalf("decoding part: %v", err)
		}
		bodies = append(bodies, string(dec))
	}
	if len(bodies) != 2 || bodies[0] != "plain body" || bodies[1] != "<b>html body</b>" {
		t.Errorf("bodies: got %q", bodies)
	}
}

func TestWrap76(t *testing.T) {
	s := strings.Repeat("a", 160)
	lines := strings.Split(wrap76(s), "\r\n")
	if len(lines) != 3 || len(lines[0]) != 76 || len(lines[2]) != 8 {
		t.Errorf("got line lengths %d", len(lines))
	}
}

func TestMailgunSend(t *testing.T) {
	form := map[string]string{}
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		for _, k := range []string{"to", "subject", "html"} {
			form[k] = r.FormValue(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"message":"Queued. Thank you.","id":"<1@mg.example.com>"}`)
	}))
	defer srv.Close()

	m, err := NewMailgun("mg.example.com", "key-test")
	if err != nil {
		t.Fatal(err)
	}
	m.SetAPIBase(srv.URL + "/v3")

	msg := Message{From: "me@example.com", To: "you@example.com", Subject: "hello", Text: "plain", HTML: "<p>html</p>"}
	if err := m.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/mg.example.com/messages") {
		t.Errorf("path: got %q", gotPath)
	}
	if form["to"] != "you@example.com" || form["subject"] != "hello" || form["html"] != "<p>html</p>" {
		t.Errorf("form: got %v", form)
	}
}

type failingSender struct{}

func (failingSender) Send(context.Context, Message) error { return errors.New("smtp down") }

func TestLoggingPassesErrors(t *testing.T) {
	err := WithLogging(failingSender{}, nil).Send(context.Background(), Message{To: "x"})
	if err == nil || err.Error() != "smtp down" {
		t.Errorf("got %v", err)
	}
}
