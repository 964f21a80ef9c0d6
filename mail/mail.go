// Package mail delivers outgoing email. Senders never change local state; a
// failed or timed out delivery is reported as model.ErrExternal.
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mailjet/mailjet-apiv3-go"

	"github.com/njrobinson96/InvoiceNinja2/model"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outgoing email.
type Message struct {
	To          string
	ToName      string
	FromName    string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Sender delivers a message. Implementations must honour ctx.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// MailjetSender sends through the Mailjet v3.1 API.
type MailjetSender struct {
	client      *mailjet.Client
	fromAddress string
	fromName    string
}

// NewMailjetSender creates a sender for the given API credentials.
func NewMailjetSender(apiKey, secret, fromAddress, fromName string) *MailjetSender {
	return &MailjetSender{
		client:      mailjet.NewMailjetClient(apiKey, secret),
		fromAddress: fromAddress,
		fromName:    fromName,
	}
}

// Send delivers msg. The Mailjet client has no context support, so the call
// runs in its own goroutine and is abandoned when ctx ends.
func (m *MailjetSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("%w: message has no recipient", model.ErrExternal)
	}
	fromName := m.fromName
	if msg.FromName != "" {
		fromName = msg.FromName
	}
	info := mailjet.InfoMessagesV31{
		From: &mailjet.RecipientV31{
			Email: m.fromAddress,
			Name:  fromName,
		},
		To: &mailjet.RecipientsV31{
			mailjet.RecipientV31{
				Email: msg.To,
				Name:  msg.ToName,
			},
		},
		Subject:  msg.Subject,
		TextPart: msg.Text,
		HTMLPart: msg.HTML,
	}
	if msg.ReplyTo != "" {
		info.ReplyTo = &mailjet.RecipientV31{Email: msg.ReplyTo}
	}
	if len(msg.Attachments) > 0 {
		atts := make(mailjet.AttachmentsV31, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			atts = append(atts, mailjet.AttachmentV31{
				ContentType:   a.ContentType,
				Filename:      a.Filename,
				Base64Content: base64.StdEncoding.EncodeToString(a.Data),
			})
		}
		info.Attachments = &atts
	}
	messages := mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{info}}

	done := make(chan error, 1)
	go func() {
		_, err := m.client.SendMailV31(&messages)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: mailjet: %v", model.ErrExternal, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: mailjet: %v", model.ErrExternal, ctx.Err())
	}
}

// LogSender writes messages to a logger instead of sending them. It keeps
// every message it has seen.
type LogSender struct {
	Logger *slog.Logger

	mu   sync.Mutex
	sent []Message
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrExternal, err)
	}
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()
	if l.Logger != nil {
		l.Logger.Info("mail not sent (log sender)", "to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	}
	return nil
}

// Sent returns a copy of the messages recorded so far.
func (l *LogSender) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}
