package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	sendMail sendMailFunc
}

func NewEmailSender(host string, port int, user, pass, from string) *EmailSender {
	if from == "" {
		from = user
	}
	return &EmailSender{
		host:     host,
		port:     port,
		username: user,
		password: pass,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

func (e *EmailSender) Send(ctx context.Context, _ string, to, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("smtp: invalid recipient %q", to)
	}

	msg := []byte(
		fmt.Sprintf("From: %s\r\n", e.from) +
			fmt.Sprintf("To: %s\r\n", to) +
			"Subject: Your login code\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			otpMessage(code) + "\r\n",
	)

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	if err := e.sendMail(addr, auth, e.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp: send to %s: %w", to, err)
	}
	return nil
}
