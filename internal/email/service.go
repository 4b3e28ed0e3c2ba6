// Package email sends transactional mail (verification, password reset,
// plan upgrade receipts) over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"resumekit/api/internal/util"
)

const defaultAppName = "Resumekit"

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	if config.AppName == "" {
		config.AppName = defaultAppName
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain-text fallback part.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "resumekit-" + util.NewID("")

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type messageData struct {
	AppName  string
	UserName string
	URL      string
	Plan     string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := messageData{AppName: s.config.AppName, UserName: userName, URL: verificationURL}
	html, err := render("verification", data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	text := fmt.Sprintf("Welcome, %s! Verify your %s account: %s", userName, s.config.AppName, verificationURL)
	return s.SendHTMLEmail([]string{to}, "Verify your "+s.config.AppName+" account", text, html)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := messageData{AppName: s.config.AppName, UserName: userName, URL: resetURL}
	html, err := render("reset", data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Hi %s, reset your %s password within 1 hour: %s", userName, s.config.AppName, resetURL)
	return s.SendHTMLEmail([]string{to}, "Reset your "+s.config.AppName+" password", text, html)
}

func (s *Service) SendPlanReceipt(to, userName, plan string) error {
	data := messageData{AppName: s.config.AppName, UserName: userName, Plan: plan}
	html, err := render("receipt", data)
	if err != nil {
		return fmt.Errorf("render receipt template: %w", err)
	}
	text := fmt.Sprintf("Hi %s, your %s plan is now %s.", userName, s.config.AppName, plan)
	return s.SendHTMLEmail([]string{to}, "Your "+s.config.AppName+" plan changed", text, html)
}

var templates = template.Must(template.New("email").Parse(`
{{define "layout-head"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #222; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f6f4f; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2f6f4f; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #2f6f4f; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
{{end}}
{{define "verification"}}{{template "layout-head" .}}
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Verify your email address to start saving resumes to your account.</p>
    <p><a href="{{.URL}}" class="button">Verify Email Address</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>
    <p>This verification link will expire in 24 hours.</p>
    <div class="footer"><p>If you didn't create an account with {{.AppName}}, you can ignore this email.</p></div>
</body>
</html>{{end}}
{{define "reset"}}{{template "layout-head" .}}
    <h2>Password Reset Request</h2>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password.</p>
    <p><a href="{{.URL}}" class="button">Reset Password</a></p>
    <p class="link">{{.URL}}</p>
    <p><strong>This reset link will expire in 1 hour.</strong></p>
    <div class="footer"><p>If you didn't request a password reset, your password will remain unchanged.</p></div>
</body>
</html>{{end}}
{{define "receipt"}}{{template "layout-head" .}}
    <h2>Thanks, {{.UserName}}!</h2>
    <p>Your account is now on the <strong>{{.Plan}}</strong> plan. Premium templates, DOCX export and resume import are unlocked.</p>
</body>
</html>{{end}}
`))

func render(name string, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
