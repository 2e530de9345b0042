// Package email sends habit reminder emails over SMTP.
package email

import (
	"fmt"
	"net"
	"net/smtp"
)

// smtpServer holds the host:port of the SMTP server reminders go through.
var smtpServer string

// auth holds the credentials for the SMTP server, built by InitEmailService.
var auth smtp.Auth

// fromEmail is the "From" address on every reminder sent.
var fromEmail string

// InitEmailService configures the SMTP sender and dials the server once to
// verify the connection. server is a host:port address.
func InitEmailService(server, sender, password string) error {
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		return fmt.Errorf("invalid SMTP server address %q: %v", server, err)
	}

	smtpServer = server
	fromEmail = sender
	auth = smtp.PlainAuth("", sender, password, host)

	c, err := smtp.Dial(smtpServer)
	if err != nil {
		return fmt.Errorf("cannot connect to the SMTP server: %v", err)
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("cannot close the SMTP connection: %v", err)
	}
	return nil
}

// SendReminder emails the recipient a nudge for the named habit. at is the
// habit's configured reminder time, HH:MM.
func SendReminder(to, habitName, at string) error {
	headers := map[string]string{
		"From":         fromEmail,
		"To":           to,
		"Subject":      fmt.Sprintf("Reminder: %s", habitName),
		"MIME-version": "1.0",
		"Content-Type": "text/html; charset=\"UTF-8\"",
	}

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}

	body := fmt.Sprintf(`
	<html>
		<body>
			<div style="max-width: 600px; margin: 0 auto; padding: 10px;">
				<h1>Time for <strong>%s</strong></h1>
				<p>You asked to be reminded at %s. Open your dashboard and mark it done once you finish.</p>
			</div>
		</body>
	</html>
	`, habitName, at)
	message += "\r\n" + body

	err := smtp.SendMail(
		smtpServer,
		auth,
		fromEmail,
		[]string{to},
		[]byte(message),
	)
	if err != nil {
		return fmt.Errorf("failed to send reminder: %v", err)
	}
	return nil
}
