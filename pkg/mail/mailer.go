package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/modulearn/modulearn-api/pkg/config"
)

// Mailer sends transactional HTML email over SMTP. When disabled it logs and
// drops messages, which keeps development environments quiet.
type Mailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer constructs a mailer from config.
func NewMailer(cfg config.MailConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// Send delivers an HTML email to the recipients.
func (m *Mailer) Send(to []string, subject, htmlBody string) error {
	if !m.cfg.Enabled {
		m.logger.Sugar().Infow("mail disabled, dropping message", "to", to, "subject", subject)
		return nil
	}
	if m.cfg.Sender == "" {
		return fmt.Errorf("mail sender not configured")
	}

	msg := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n"
	msg += fmt.Sprintf("From: Modulearn <%s>\r\n", m.cfg.Sender)
	msg += fmt.Sprintf("To: %s\r\n", strings.Join(to, ","))
	msg += fmt.Sprintf("Subject: %s\r\n\r\n", subject)
	msg += htmlBody

	auth := smtp.PlainAuth("", m.cfg.Sender, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	if err := m.send(addr, auth, m.cfg.Sender, to, []byte(msg)); err != nil {
		m.logger.Sugar().Warnw("failed to send mail", "to", to, "subject", subject, "error", err)
		return err
	}
	return nil
}

// SendInvitation emails a team invitation with a join link.
func (m *Mailer) SendInvitation(to, inviterName, orgName, joinURL string) error {
	subject := fmt.Sprintf("%s invited you to join %s on Modulearn", inviterName, orgName)
	body := wrapTemplate("You're invited", fmt.Sprintf(
		`<p>%s has invited you to join <strong>%s</strong>.</p>
		<p><a href="%s" class="button">Accept invitation</a></p>
		<p>If you weren't expecting this email you can safely ignore it.</p>`,
		inviterName, orgName, joinURL,
	))
	return m.Send([]string{to}, subject, body)
}

// SendModuleReady notifies the uploader that processing finished.
func (m *Mailer) SendModuleReady(to, moduleTitle, moduleURL string) error {
	subject := fmt.Sprintf("\"%s\" is ready", moduleTitle)
	body := wrapTemplate("Module ready", fmt.Sprintf(
		`<p>Your document has been converted into the learning module <strong>%s</strong>.</p>
		<p><a href="%s" class="button">Open module</a></p>`,
		moduleTitle, moduleURL,
	))
	return m.Send([]string{to}, subject, body)
}

func wrapTemplate(title, bodyContent string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<style>
	body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
	.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
	.header { background-color: #1A1A40; padding: 30px; text-align: center; }
	.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; }
	.content { padding: 40px 30px; color: #1A1A40; line-height: 1.6; }
	.button { display: inline-block; padding: 12px 24px; background-color: #1A1A40; color: #FFFFFF; text-decoration: none; border-radius: 4px; }
</style>
</head>
<body>
	<div class="container">
		<div class="header"><h1>%s</h1></div>
		<div class="content">%s</div>
	</div>
</body>
</html>`, title, bodyContent)
}
