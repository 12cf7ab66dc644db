package mail

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"
	"time"
)

const LoginLinkSubject = "Your Photo Gallery Login Link"

var loginLinkTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Your Photo Gallery Login Link</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .button { display: inline-block; background-color: #4F46E5; color: white !important; padding: 12px 24px; text-decoration: none; border-radius: 5px; font-weight: bold; }
    .footer { font-size: 12px; color: #777; margin-top: 40px; text-align: center; }
  </style>
</head>
<body>
  <p>{{if .Name}}Hello {{.Name}},{{else}}Hello,{{end}}</p>
  <p>You requested to log in to Photo Gallery. Click the button below to sign in:</p>
  <div style="text-align: center; margin: 30px 0;">
    <a href="{{.Link}}" class="button">Secure Login</a>
  </div>
  <p>This login link will expire in {{.Minutes}} minutes. If you didn't request this login, you can ignore this email.</p>
  <p>Thank you,<br>Photo Gallery Team</p>
  <div class="footer">This is an automated message, please do not reply to this email.</div>
</body>
</html>
`))

// LoginLink is the URL a user follows to verify a login token
func LoginLink(baseURL, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return strings.TrimRight(baseURL, "/") + "/api/auth/verify?" + q.Encode()
}

func LoginLinkMessage(baseURL, email, name, token string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := loginLinkTemplate.Execute(&buf, struct {
		Name    string
		Link    string
		Minutes int
	}{name, LoginLink(baseURL, email, token), int(ttl.Minutes())})
	if err != nil {
		return Message{}, err
	}
	return Message{To: email, Subject: LoginLinkSubject, HTML: buf.String()}, nil
}
