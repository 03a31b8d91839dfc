package message

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MailConfig carries the settings for sending a notification mail.
type MailConfig struct {
	// SMTPAddr is the mail server in host:port form.
	SMTPAddr string
	// From defaults to a hostname-derived address when empty.
	From string
	// To lists the recipients; at least one is required.
	To []string
}

// Mail sends a plain-text notification with the markup stripped from the
// body, so the same strings printed to the terminal can be mailed.
func Mail(cfg MailConfig, subject, body string) error {
	if cfg.SMTPAddr == "" {
		return errors.New("no SMTP server configured")
	}
	if len(cfg.To) == 0 {
		return errors.New("no mail recipients configured")
	}
	from := cfg.From
	if from == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "localhost"
		}
		// "host.example.com" -> "host@example.com"
		from = strings.Replace(hostname, ".", "@", 1)
		if !strings.Contains(from, "@") {
			from += "@localhost"
		}
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("\r\n")
	msg.WriteString(Strip(body))
	msg.WriteString("\r\n")

	if err := smtp.SendMail(cfg.SMTPAddr, nil, from, cfg.To, []byte(msg.String())); err != nil {
		return errors.Wrapf(err, "failed to send mail via %s", cfg.SMTPAddr)
	}
	return nil
}
