// Package mail delivers rendered artifacts to recipients over SMTP.
//
// The pipeline depends on the small Transport/Conn pair rather than a
// concrete client so dispatch can be exercised in tests without a mail
// server, and SMTPTransport adapts github.com/wneessen/go-mail behind it.
// A Conn holds one authenticated session that is reused for every message
// in a run.
package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/ekansh09/certflow"
)

// Message is one personalized delivery.
type Message struct {
	To             string
	Subject        string
	BodyText       string
	BodyHTML       string
	AttachmentPath string
}

// Conn is an open sending session.
type Conn interface {
	// Send delivers one message on the session.
	Send(ctx context.Context, msg *Message) error

	// Close tears the session down. Safe to call once Send is done.
	Close() error
}

// Transport establishes sending sessions.
type Transport interface {
	// Connect opens an authenticated session. A failure wraps
	// certflow.ErrNoConnection.
	Connect(ctx context.Context) (Conn, error)
}

// SMTPConfig carries the server coordinates and sender identity.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Validate reports whether the config can open a session.
func (c SMTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: smtp host is required", certflow.ErrInvalidConfig)
	case c.From == "":
		return fmt.Errorf("%w: sender address is required", certflow.ErrInvalidConfig)
	}
	return nil
}

// SMTPTransport opens TLS SMTP sessions with plain authentication.
type SMTPTransport struct {
	cfg SMTPConfig
}

var _ Transport = (*SMTPTransport)(nil)

// NewSMTPTransport validates cfg and returns a transport for it.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPTransport{cfg: cfg}, nil
}

// From returns the sender identity sessions will use.
func (t *SMTPTransport) From() string { return t.cfg.From }

// Connect dials and authenticates. The returned Conn reuses the dialed
// session for every Send.
func (t *SMTPTransport) Connect(ctx context.Context) (Conn, error) {
	opts := []gomail.Option{
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(t.cfg.Username),
		gomail.WithPassword(t.cfg.Password),
	}
	if t.cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(t.cfg.Port))
	}

	client, err := gomail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", certflow.ErrNoConnection, err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", certflow.ErrNoConnection, t.cfg.Host, err)
	}
	return &smtpConn{client: client, from: t.cfg.From}, nil
}

type smtpConn struct {
	client *gomail.Client
	from   string
}

func (c *smtpConn) Send(ctx context.Context, m *Message) error {
	msg := gomail.NewMsg()
	if err := msg.From(c.from); err != nil {
		return fmt.Errorf("sender %q: %w", c.from, err)
	}
	if err := msg.To(m.To); err != nil {
		return fmt.Errorf("recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, m.BodyText)
	if m.BodyHTML != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, m.BodyHTML)
	}
	if m.AttachmentPath != "" {
		msg.AttachFile(m.AttachmentPath)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Send(msg)
}

func (c *smtpConn) Close() error {
	return c.client.Close()
}
