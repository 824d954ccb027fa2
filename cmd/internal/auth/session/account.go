package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"daycheck/cmd/internal/restapi"
)

// Signup is the input of RegisterVerified.
type Signup struct {
	Email    string
	Password string
	Name     string
	Code     string
}

// Register creates an account. It never touches tokens or the session state;
// only Loading and Err change.
func (m *Manager) Register(ctx context.Context, email, password, name string) Result {
	m.update(func(s *Snapshot) {
		s.Loading = true
		s.Err = ""
	})

	res, err := m.api.Signup(ctx, restapi.SignupRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
		Name:     strings.TrimSpace(name),
	})
	if err != nil {
		return m.accountFailure("session.register.fail", err, m.registerMessage(err))
	}
	if !res.Success {
		return m.accountFailure("session.register.malformed", nil, m.msgs.MalformedSignup)
	}

	msg := strings.TrimSpace(res.Message)
	if msg == "" {
		msg = m.msgs.RegisterSucceeded
	}
	m.update(func(s *Snapshot) { s.Loading = false })
	m.log.Info("session.register.ok")
	return Result{Success: true, Message: msg}
}

// RegisterVerified runs the full sign-up flow: the emailed code is checked
// first and the account is created only when it is accepted.
func (m *Manager) RegisterVerified(ctx context.Context, in Signup) Result {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return m.accountFailure("session.register.fail", nil, m.msgs.MissingCode)
	}

	m.update(func(s *Snapshot) {
		s.Loading = true
		s.Err = ""
	})
	if err := m.api.VerifyCode(ctx, strings.TrimSpace(in.Email), code); err != nil {
		return m.accountFailure("session.register.verify.fail", err, m.registerMessage(err))
	}
	return m.Register(ctx, in.Email, in.Password, in.Name)
}

// SendVerification asks the backend to email a verification code.
func (m *Manager) SendVerification(ctx context.Context, email string) Result {
	m.update(func(s *Snapshot) {
		s.Loading = true
		s.Err = ""
	})
	if err := m.api.SendVerification(ctx, strings.TrimSpace(email)); err != nil {
		return m.accountFailure("session.verification.send.fail", err, m.registerMessage(err))
	}
	m.update(func(s *Snapshot) { s.Loading = false })
	return Result{Success: true, Message: m.msgs.CodeSent}
}

// VerifyCode reports whether the backend accepts code for email. It changes nothing.
func (m *Manager) VerifyCode(ctx context.Context, email, code string) bool {
	if err := m.api.VerifyCode(ctx, strings.TrimSpace(email), strings.TrimSpace(code)); err != nil {
		m.log.Info("session.verify_code.fail", "status", restapi.StatusOf(err), "code", restapi.CodeOf(err), "err", err)
		return false
	}
	return true
}

// VerifyEmail confirms an emailed code and reports a user-facing result.
func (m *Manager) VerifyEmail(ctx context.Context, email, code string) Result {
	m.update(func(s *Snapshot) {
		s.Loading = true
		s.Err = ""
	})
	if err := m.api.VerifyCode(ctx, strings.TrimSpace(email), strings.TrimSpace(code)); err != nil {
		return m.accountFailure("session.verify_email.fail", err, m.verifyMessage(err))
	}
	m.update(func(s *Snapshot) { s.Loading = false })
	return Result{Success: true, Message: m.msgs.VerifySucceeded}
}

// VerifyToken confirms an email-link token. An empty token fails without a request.
func (m *Manager) VerifyToken(ctx context.Context, token string) Result {
	token = strings.TrimSpace(token)
	if token == "" {
		return m.accountFailure("session.verify_token.fail", nil, m.msgs.InvalidVerifyRequest)
	}

	m.update(func(s *Snapshot) {
		s.Loading = true
		s.Err = ""
	})
	res, err := m.api.VerifyToken(ctx, token)
	if err != nil {
		return m.accountFailure("session.verify_token.fail", err, m.verifyMessage(err))
	}
	msg := strings.TrimSpace(res.Message)
	if msg == "" {
		msg = m.msgs.VerifySucceeded
	}
	m.update(func(s *Snapshot) { s.Loading = false })
	return Result{Success: true, Message: msg}
}

func (m *Manager) accountFailure(event string, err error, msg string) Result {
	if err != nil {
		m.log.Info(event, "status", restapi.StatusOf(err), "code", restapi.CodeOf(err), "err", err)
	} else {
		m.log.Info(event, "reason", msg)
	}
	m.update(func(s *Snapshot) {
		s.Loading = false
		s.Err = msg
	})
	return Result{Message: msg}
}

func (m *Manager) registerMessage(err error) string {
	code := restapi.CodeOf(err)
	switch {
	case errors.Is(err, restapi.ErrMalformedResponse):
		return m.msgs.MalformedSignup
	case restapi.StatusOf(err) == http.StatusConflict || code == restapi.CodeDuplicateEmail:
		return m.msgs.DuplicateEmail
	case code == restapi.CodeInvalidAuthCode:
		return m.msgs.InvalidCode
	case restapi.MessageOf(err) != "":
		return restapi.MessageOf(err)
	default:
		return m.msgs.RegisterFailed
	}
}

func (m *Manager) verifyMessage(err error) string {
	switch {
	case restapi.CodeOf(err) == restapi.CodeInvalidAuthCode:
		return m.msgs.InvalidCode
	case restapi.MessageOf(err) != "":
		return restapi.MessageOf(err)
	default:
		return m.msgs.VerifyFailed
	}
}
