package recalc

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
)

const maxDeliveryAttempts = 5

// SMTPMailer renders the verification email from a template and hands
// it to an SMTP relay.
type SMTPMailer struct {
	host           string
	port           int
	username       string
	password       string
	from           string
	frontendOrigin string
	engine         *django.Engine
	logger         Logger
}

// NewSMTPMailer creates a new SMTPMailer instance. Templates load once
// at construction.
func NewSMTPMailer(cfg Config, logger Logger) (*SMTPMailer, error) {
	if logger == nil {
		logger = defLogger{}
	}

	engine := django.New(cfg.TemplatesDir, ".html")
	if err := engine.Load(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load mail templates")
	}

	return &SMTPMailer{
		host:           cfg.SMTPHost,
		port:           cfg.SMTPPort,
		username:       cfg.SMTPUsername,
		password:       cfg.SMTPPassword,
		from:           cfg.SMTPFrom,
		frontendOrigin: cfg.FrontendOrigin,
		engine:         engine,
		logger:         logger,
	}, nil
}

// SendVerification emails the account verification link
func (m *SMTPMailer) SendVerification(ctx context.Context, user *User, code string) error {
	link := fmt.Sprintf("%s/verified/%s", strings.TrimRight(m.frontendOrigin, "/"), code)

	body := &bytes.Buffer{}
	err := m.engine.Render(body, "verification", fiber.Map{
		"username": user.Username,
		"link":     link,
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to render verification mail")
	}

	msg := &bytes.Buffer{}
	fmt.Fprintf(msg, "From: %s\r\n", m.from)
	fmt.Fprintf(msg, "To: %s\r\n", user.Mail)
	fmt.Fprintf(msg, "Subject: Verify your account\r\n")
	fmt.Fprintf(msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(msg, "\r\n")
	msg.Write(body.Bytes())

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := smtp.SendMail(addr, auth, m.from, []string{user.Mail}, msg.Bytes()); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to send verification mail")
	}

	return nil
}

// NotificationWorker drains the notification outbox on a fixed
// interval. Each row is retried until sent or its attempts run out;
// delivery failures never surface to the request that enqueued them.
type NotificationWorker struct {
	repo     RepositoryManager
	mailer   Mailer
	interval time.Duration
	batch    int
	logger   Logger
}

// NewNotificationWorker creates a new NotificationWorker instance
func NewNotificationWorker(repo RepositoryManager, mailer Mailer, interval time.Duration, logger Logger) *NotificationWorker {
	if logger == nil {
		logger = defLogger{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &NotificationWorker{
		repo:     repo,
		mailer:   mailer,
		interval: interval,
		batch:    25,
		logger:   logger,
	}
}

// Run blocks, draining the outbox until the context is canceled
func (w *NotificationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil {
				w.logger.Error("notification drain failed: %s", err)
			}
		}
	}
}

// DrainOnce processes one batch of pending notifications
func (w *NotificationWorker) DrainOnce(ctx context.Context) error {
	pending, err := w.repo.Notifications().ListPending(ctx, w.batch)
	if err != nil {
		return StorageError(err, "failed to list pending notifications")
	}

	for _, notification := range pending {
		if err := w.deliver(ctx, notification); err != nil {
			w.logger.Warn("notification %s attempt %d failed: %s",
				notification.ID, notification.Attempts+1, err)

			attempts := notification.Attempts + 1
			exhausted := attempts >= maxDeliveryAttempts

			if markErr := w.repo.Notifications().MarkAttempted(ctx, notification.ID, attempts, err.Error(), exhausted); markErr != nil {
				return StorageError(markErr, "failed to record delivery attempt")
			}

			continue
		}

		if err := w.repo.Notifications().MarkSent(ctx, notification.ID); err != nil {
			return StorageError(err, "failed to mark notification sent")
		}
	}

	return nil
}

func (w *NotificationWorker) deliver(ctx context.Context, notification *Notification) error {
	switch notification.Kind {
	case NotificationKindVerification:
		user := &User{
			ID:       notification.UserID,
			Mail:     notification.Recipient,
			Username: notification.Recipient,
		}

		if loaded, err := w.repo.Users().GetByID(ctx, notification.UserID.String()); err == nil {
			user = loaded
		} else {
			w.logger.Warn("notification %s user lookup failed, addressing by recipient: %s",
				notification.ID, err)
		}

		return w.mailer.SendVerification(ctx, user, notification.Code)
	default:
		return errors.New("unrecognized notification kind", errors.CategoryInternal).
			WithMetadata(map[string]any{"kind": notification.Kind})
	}
}
