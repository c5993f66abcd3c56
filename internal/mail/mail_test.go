package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/run"
)

func TestMessageRender(t *testing.T) {
	m := Message{
		From:    "gisadmin <gisadmin@nnva.gov>",
		To:      []string{"a@nnva.gov", "b@nnva.gov"},
		Subject: "Scheduled Task - export weekday - Success",
		Body:    "Task:   export weekday",
	}
	want := "From: gisadmin <gisadmin@nnva.gov>\r\n" +
		"To: a@nnva.gov, b@nnva.gov\r\n" +
		"Subject: Scheduled Task - export weekday - Success\r\n\r\n" +
		"Task:   export weekday\r\n"
	if got := m.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestSMTPSenderSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s := NewSMTPSender("smtp.nnva.gov")
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{
		From:    "gisadmin <gisadmin@nnva.gov>",
		To:      []string{"Marietta Washington <mvwashington@nnva.gov>", "jsmith@nnva.gov"},
		Subject: "hello",
		Body:    "body",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if gotAddr != "smtp.nnva.gov:25" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "gisadmin@nnva.gov" {
		t.Errorf("from = %q", gotFrom)
	}
	if strings.Join(gotTo, ",") != "mvwashington@nnva.gov,jsmith@nnva.gov" {
		t.Errorf("to = %v", gotTo)
	}
	if !strings.Contains(string(gotMsg), "To: Marietta Washington <mvwashington@nnva.gov>, jsmith@nnva.gov\r\n") {
		t.Errorf("message headers = %q", gotMsg)
	}
}

func TestSMTPSenderSkipsEmptyRecipients(t *testing.T) {
	s := NewSMTPSender("smtp.nnva.gov:2525")
	called := false
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}
	if err := s.Send(context.Background(), Message{From: "x@y.z"}); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("send called with no recipients")
	}
	if s.Addr != "smtp.nnva.gov:2525" {
		t.Errorf("Addr = %q, want explicit port kept", s.Addr)
	}
}

func TestSMTPSenderWrapsFailure(t *testing.T) {
	s := NewSMTPSender("smtp.nnva.gov")
	relay := errors.New("connection refused")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return relay }

	err := s.Send(context.Background(), Message{From: "a@b.c", To: []string{"d@e.f"}, Subject: "s"})
	if !errors.Is(err, relay) {
		t.Fatalf("err = %v, want wrapped relay error", err)
	}
	f, ok := run.AsFailure(err)
	if !ok || f.Op != "SendMail" {
		t.Errorf("err = %#v, want SendMail failure", err)
	}
}

func TestSMTPSenderBadAddress(t *testing.T) {
	s := NewSMTPSender("smtp.nnva.gov")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return nil }
	if err := s.Send(context.Background(), Message{From: "a@b.c", To: []string{"not an address"}}); err == nil {
		t.Error("expected error for malformed recipient")
	}
}

func TestStatusRecipients(t *testing.T) {
	cfg := config.MailConfig{
		RecipientsIfSuccess: []string{"ok@nnva.gov"},
		RecipientsIfError:   []string{"ok@nnva.gov", "oncall@nnva.gov"},
	}
	if got := StatusRecipients(cfg, run.StatusSuccess); len(got) != 1 {
		t.Errorf("success recipients = %v", got)
	}
	if got := StatusRecipients(cfg, run.StatusError); len(got) != 2 {
		t.Errorf("error recipients = %v", got)
	}
}

func TestSendStatus(t *testing.T) {
	rc := run.New("gisops export weekday", run.Env{Host: "arctic"})
	rc.RecordError("Compact(db=x)", errors.New("locked"))
	report := rc.Finalize()

	rec := &Recorder{}
	cfg := config.MailConfig{RecipientsIfError: []string{"oncall@nnva.gov"}}
	if err := SendStatus(context.Background(), rec, cfg, "me <me@nnva.gov>", report); err != nil {
		t.Fatal(err)
	}
	if len(rec.Sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(rec.Sent))
	}
	if rec.Sent[0].Subject != "Scheduled Task - gisops export weekday - Error" {
		t.Errorf("subject = %q", rec.Sent[0].Subject)
	}
	if !strings.Contains(rec.Sent[0].Body, "Compact(db=x): locked") {
		t.Errorf("body missing error entry:\n%s", rec.Sent[0].Body)
	}
}

func TestAddressHelpers(t *testing.T) {
	if got := DefaultSender("gisadmin", "nnva.gov"); got != "gisadmin <gisadmin@nnva.gov>" {
		t.Errorf("DefaultSender = %q", got)
	}
	got := UserAddresses([]string{"jsmith", "mvwashington"}, "nnva.gov")
	if strings.Join(got, ",") != "jsmith@nnva.gov,mvwashington@nnva.gov" {
		t.Errorf("UserAddresses = %v", got)
	}
}

func TestWarningMessage(t *testing.T) {
	m := WarningMessage("me", []string{"u@nnva.gov"}, 15*time.Minute)
	if m.Subject != "Please Disconnect from the GIS Database" {
		t.Errorf("subject = %q", m.Subject)
	}
	if !strings.Contains(m.Body, "begin in 15 minutes") {
		t.Errorf("body = %q", m.Body)
	}
	n := NotificationMessage("me", []string{"u@nnva.gov"})
	if !strings.HasPrefix(n.Body, "All GIS services are now available.") {
		t.Errorf("notification body = %q", n.Body)
	}
}
