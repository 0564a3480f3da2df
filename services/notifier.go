package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"go.uber.org/zap"
)

// Notification ist eine Nachricht an einen Einreicher.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Notifier stellt Benachrichtigungen zu.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ResultsNotification baut die Abschluss-Mail einer Studie mit Permalink.
func ResultsNotification(to, studyName, baseURL string, analysisID uint) Notification {
	return Notification{
		To:      to,
		Subject: studyName + " Analysis Results",
		Body: fmt.Sprintf("Hello, \n you can find your analysis results in the following link: \n %s%d",
			baseURL, analysisID),
	}
}

// MailNotifier versendet über shoutrrr. Der Empfänger wird als toaddresses an die Basis-URL gehängt.
type MailNotifier struct {
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewMailNotifier prüft die Basis-URL. Eine leere URL deaktiviert den Versand (nur Log).
func NewMailNotifier(rawURL string, timeout time.Duration, logger *zap.Logger) (*MailNotifier, error) {
	if rawURL != "" {
		if _, err := url.Parse(rawURL); err != nil {
			return nil, fmt.Errorf("invalid notification url: %w", err)
		}
	}
	return &MailNotifier{baseURL: rawURL, timeout: timeout, logger: logger}, nil
}

func (m *MailNotifier) Notify(ctx context.Context, n Notification) error {
	l := m.logger.With(zap.String("to", n.To), zap.String("subject", n.Subject))
	if m.baseURL == "" {
		l.Info("Benachrichtigung deaktiviert, Nachricht nur protokolliert", zap.String("body", n.Body))
		return nil
	}
	if n.To == "" {
		return fmt.Errorf("notification without recipient")
	}

	target, err := recipientURL(m.baseURL, n.To)
	if err != nil {
		return err
	}
	sender, err := shoutrrr.CreateSender(target)
	if err != nil {
		return fmt.Errorf("create notification sender: %w", err)
	}
	if m.timeout > 0 {
		sender.Timeout = m.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	params := stypes.Params{}
	params.SetTitle(n.Subject)
	for _, e := range sender.Send(n.Body, &params) {
		if e != nil {
			return fmt.Errorf("send notification: %w", e)
		}
	}
	l.Info("Benachrichtigung versendet")
	return nil
}

func recipientURL(base, to string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid notification url: %w", err)
	}
	q := u.Query()
	q.Set("toaddresses", to)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
