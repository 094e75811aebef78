// Package email envía las notificaciones de login vía SMTP.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/Effham/wellvois/internal/observability/logger"
	mail "github.com/go-mail/mail"
)

// Notifier es el contrato que consume el orquestador de login.
type Notifier interface {
	// NotifyLogin avisa al usuario de un login exitoso. Nunca bloquea el
	// request: el envío es fire-and-forget y las fallas solo se loguean.
	NotifyLogin(ctx context.Context, to string, when time.Time, clientIP string)
}

// SMTPConfig configura el mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpNotifier struct {
	dialer *mail.Dialer
	from   string
}

// NewSMTP crea un notifier SMTP real.
func NewSMTP(cfg SMTPConfig) Notifier {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 10 * time.Second
	return &smtpNotifier{dialer: d, from: cfg.From}
}

func (n *smtpNotifier) NotifyLogin(ctx context.Context, to string, when time.Time, clientIP string) {
	log := logger.From(ctx).With(logger.Component("email"), logger.Op("NotifyLogin"))

	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Nuevo inicio de sesión en tu cuenta")
	m.SetBody("text/plain", fmt.Sprintf(
		"Se inició sesión en tu cuenta el %s desde la IP %s.\n\n"+
			"Si no fuiste vos, cambiá tu contraseña inmediatamente.",
		when.Format("02/01/2006 15:04 MST"), clientIP,
	))

	go func() {
		if err := n.dialer.DialAndSend(m); err != nil {
			log.Warn("login notification send failed", logger.Email(to), logger.Err(err))
		}
	}()
}

// Noop es un notifier que no hace nada (dev/tests, SMTP deshabilitado).
type Noop struct{}

func (Noop) NotifyLogin(ctx context.Context, to string, when time.Time, clientIP string) {}
