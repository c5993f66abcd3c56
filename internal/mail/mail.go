// Package mail sends the plain-text messages the task commands produce:
// status reports to administrators and warnings to connected users.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/run"
)

// Message is a single outbound mail.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Render returns the wire form: From, To and Subject headers, a blank
// line, then the body and a trailing CRLF.
func (m Message) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", m.From)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n\r\n", m.Subject)
	sb.WriteString(m.Body)
	sb.WriteString("\r\n")
	return sb.String()
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPSender relays through an unauthenticated SMTP server.
type SMTPSender struct {
	Addr string

	// send defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender for server. Port 25 is assumed when the
// address has none.
func NewSMTPSender(server string) *SMTPSender {
	addr := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		addr = net.JoinHostPort(server, "25")
	}
	return &SMTPSender{Addr: addr, send: smtp.SendMail}
}

// Send delivers m. A message with no recipients is silently dropped.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if len(m.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := bareAddress(m.From)
	if err != nil {
		return fmt.Errorf("sender %q: %w", m.From, err)
	}
	to := make([]string, 0, len(m.To))
	for _, r := range m.To {
		addr, err := bareAddress(r)
		if err != nil {
			return fmt.Errorf("recipient %q: %w", r, err)
		}
		to = append(to, addr)
	}
	send := s.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(s.Addr, nil, from, to, []byte(m.Render())); err != nil {
		return run.Fail("SendMail", err, "server", s.Addr, "subject", m.Subject)
	}
	return nil
}

// bareAddress strips a display name: "Jo Smith <jsmith@x.gov>" gives
// "jsmith@x.gov".
func bareAddress(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}

// DefaultSender gives "user <user@domain>".
func DefaultSender(user, domain string) string {
	return fmt.Sprintf("%s <%s@%s>", user, user, domain)
}

// UserAddresses maps Windows user names to mail addresses in domain.
func UserAddresses(users []string, domain string) []string {
	addrs := make([]string, 0, len(users))
	for _, u := range users {
		addrs = append(addrs, u+"@"+domain)
	}
	return addrs
}

// StatusRecipients picks the recipient list for a report status.
func StatusRecipients(cfg config.MailConfig, status run.Status) []string {
	if status == run.StatusSuccess {
		return cfg.RecipientsIfSuccess
	}
	return cfg.RecipientsIfError
}

// StatusMessage builds the end-of-run report mail.
func StatusMessage(cfg config.MailConfig, from string, r *run.Report) Message {
	return Message{
		From:    from,
		To:      StatusRecipients(cfg, r.Status),
		Subject: r.Subject(),
		Body:    r.Render(),
	}
}

// SendStatus sends the report to the status recipients.
func SendStatus(ctx context.Context, s Sender, cfg config.MailConfig, from string, r *run.Report) error {
	return s.Send(ctx, StatusMessage(cfg, from, r))
}

const autoFooter = "This message was sent by an automated process.  Please do not reply.\r\n"

// WarningMessage asks connected users to disconnect before maintenance
// starts in wait.
func WarningMessage(from string, to []string, wait time.Duration) Message {
	body := "Please save your edits, stop editing, and disconnect from the GIS database.\r\n"
	body += fmt.Sprintf("Automated GIS maintenance will begin in %d minutes.\r\n\r\n", int(wait.Minutes()))
	body += autoFooter
	return Message{From: from, To: to, Subject: "Please Disconnect from the GIS Database", Body: body}
}

// NotificationMessage tells previously warned users that services are back.
func NotificationMessage(from string, to []string) Message {
	body := "All GIS services are now available.\r\n\r\n" + autoFooter
	return Message{From: from, To: to, Subject: "All GIS services are now available", Body: body}
}

// Recorder keeps messages in memory instead of sending them. It backs
// --dry-run and tests.
type Recorder struct {
	Sent []Message
	Err  error
}

// Send records m.
func (r *Recorder) Send(_ context.Context, m Message) error {
	if r.Err != nil {
		return r.Err
	}
	if len(m.To) == 0 {
		return nil
	}
	r.Sent = append(r.Sent, m)
	return nil
}
