package account

import (
	"bytes"
	"html/template"

	"github.com/goliatone/go-errors"
)

const (
	subjectVerification    = "Verify your email address"
	subjectEmailChange     = "Confirm your new email address"
	subjectPasswordReset   = "Password reset request"
	subjectPasswordChanged = "Your password has been changed"
)

var (
	verificationEmailTmpl = template.Must(template.New("verification_email").Parse(`<html>
<body>
	<p>Welcome!</p>
	<p>Please confirm your email address by following the link below. The link is valid for {{.TTLHours}} hours.</p>
	<p><a href="{{.VerifyURL}}">Verify my email</a></p>
	<p>If you did not create this account you can ignore this message.</p>
</body>
</html>`))

	emailChangeTmpl = template.Must(template.New("email_change").Parse(`<html>
<body>
	<p>You asked to change the email on your account to this address.</p>
	<p>Confirm the change by following the link below. The link is valid for {{.TTLHours}} hours.</p>
	<p><a href="{{.VerifyURL}}">Confirm new email</a></p>
	<p>If you did not request this change you can ignore this message.</p>
</body>
</html>`))

	passwordResetTmpl = template.Must(template.New("password_reset").Parse(`<html>
<body>
	<p>We received a request to reset the password on your account.</p>
	<p>Follow the link below to choose a new password. The link is valid for {{.TTLHours}} hours.</p>
	<p><a href="{{.ResetURL}}">Reset my password</a></p>
	<p>If you did not request a reset, your password is still safe and you can ignore this message.</p>
</body>
</html>`))

	passwordChangedTmpl = template.Must(template.New("password_changed").Parse(`<html>
<body>
	<p>The password on your account was just changed.</p>
	<p>If this was not you, reset your password immediately.</p>
</body>
</html>`))
)

func renderTemplate(tpl *template.Template, data any) (string, error) {
	buf := new(bytes.Buffer)
	if err := tpl.Execute(buf, data); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to render email template")
	}
	return buf.String(), nil
}
