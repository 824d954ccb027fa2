package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"daycheck/cmd/internal/schedule"
	"daycheck/cmd/security/password"
	v1 "daycheck/shared/contracts/push/v1"

	"github.com/jonboulle/clockwork"
)

// Error codes shared with the client.
const (
	CodeDuplicateEmail   = "M001"
	CodeEmailNotVerified = "M002"
	CodeBadCredentials   = "A001"
	CodeInvalidToken     = "A002"
	CodeRefreshReuse     = "A003"
	CodeInvalidAuthCode  = "A004"
	CodeRateLimited      = "A005"
	CodeBadRequest       = "C400"
	CodeNotFound         = "C404"
	CodeInternal         = "C500"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type tokenData struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	body, err := readBody(w, r, maxBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Handler serves the REST and SSE API.
type Handler struct {
	svc       *Service
	store     *Store
	broker    *Broker
	clock     clockwork.Clock
	log       *slog.Logger
	maxBody   int64
	keepAlive time.Duration
}

func NewHandler(cfg Config, svc *Service, store *Store, broker *Broker, clock clockwork.Clock, log *slog.Logger) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc:       svc,
		store:     store,
		broker:    broker,
		clock:     clock,
		log:       log,
		maxBody:   cfg.MaxBodyBytes,
		keepAlive: cfg.KeepAlive,
	}
}

// Register wires every API route onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signup", h.handleSignup)
	mux.HandleFunc("POST /api/auth/send-verification", h.handleSendVerification)
	mux.HandleFunc("POST /api/auth/verify-code", h.handleVerifyCode)
	mux.HandleFunc("GET /api/auth/verify", h.handleVerifyToken)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", h.requireAuth(h.handleLogout))
	mux.HandleFunc("GET /api/members/me", h.requireAuth(h.handleMe))

	mux.HandleFunc("GET /api/notifications", h.requireAuth(h.handleNotifications(false)))
	mux.HandleFunc("GET /api/notifications/unread", h.requireAuth(h.handleNotifications(true)))
	mux.HandleFunc("PATCH /api/notifications/read-all", h.requireAuth(h.handleMarkAllRead))
	mux.HandleFunc("PATCH /api/notifications/{id}/read", h.requireAuth(h.handleMarkRead))
	mux.HandleFunc("GET "+v1.StreamPath, h.requireAuth(h.handleStream))
	mux.HandleFunc("POST /api/dev/notifications", h.handleInject)
	mux.HandleFunc("GET /api/dev/verifications", h.handlePendingVerification)

	mux.HandleFunc("GET /api/schedules/recurring", h.requireAuth(h.handleListSchedules))
	mux.HandleFunc("POST /api/schedules/recurring", h.requireAuth(h.handleCreateSchedule))
	mux.HandleFunc("GET /api/schedules/recurring/{id}", h.requireAuth(h.handleGetSchedule))
	mux.HandleFunc("PUT /api/schedules/recurring/{id}", h.requireAuth(h.handleUpdateSchedule))
	mux.HandleFunc("DELETE /api/schedules/recurring/{id}", h.requireAuth(h.handleDeleteSchedule))
	// {a}/{b} is either date/{YYYY-MM-DD} or {id}/exceptions.
	mux.HandleFunc("GET /api/schedules/recurring/{a}/{b}", h.requireAuth(h.handleScheduleSub))
	mux.HandleFunc("POST /api/schedules/recurring/exceptions", h.requireAuth(h.handleCreateException))
	mux.HandleFunc("DELETE /api/schedules/recurring/exceptions/{id}", h.requireAuth(h.handleDeleteException))
}

// writeServiceError maps service errors onto statuses and client error codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var limited *RateLimitedError
	switch {
	case errors.As(err, &limited):
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, "too many attempts, try again later")
	case errors.Is(err, ErrDuplicateEmail):
		writeError(w, http.StatusConflict, CodeDuplicateEmail, "email is already registered")
	case errors.Is(err, ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, CodeEmailNotVerified, "email is not verified")
	case errors.Is(err, ErrInvalidCode):
		writeError(w, http.StatusBadRequest, CodeInvalidAuthCode, "invalid or expired verification code")
	case errors.Is(err, ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, CodeBadCredentials, "invalid email or password")
	case errors.Is(err, ErrRefreshReuseDetected):
		writeError(w, http.StatusUnauthorized, CodeRefreshReuse, "refresh token reuse detected")
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionExpired), errors.Is(err, ErrSessionRevoked):
		writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid or expired session")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid email address")
	case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, CodeBadRequest, "password rejected: "+err.Error())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, schedule.ErrInvalid):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	default:
		h.log.Error("devserver."+op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// ---- auth ----

type ctxKey struct{}

func claimsFrom(ctx context.Context) Claims {
	c, _ := ctx.Value(ctxKey{}).(Claims)
	return c
}

func bearer(r *http.Request) string {
	v := r.Header.Get("Authorization")
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r)
		if tok == "" {
			writeError(w, http.StatusUnauthorized, CodeInvalidToken, "missing bearer token")
			return
		}
		claims, err := h.svc.Authenticate(r.Context(), tok)
		if err != nil {
			h.writeServiceError(w, "auth", err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.writeServiceError(w, "signup", ErrInvalidRequest)
		return
	}
	if _, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.Name); err != nil {
		h.writeServiceError(w, "signup", err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "verification code sent"})
}

func (h *Handler) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.writeServiceError(w, "send_verification", ErrInvalidRequest)
		return
	}
	if err := h.svc.SendVerification(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, "send_verification", err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "verification code sent"})
}

func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.writeServiceError(w, "verify_code", ErrInvalidRequest)
		return
	}
	if err := h.svc.VerifyCode(r.Context(), req.Email, req.Code); err != nil {
		h.writeServiceError(w, "verify_code", err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "email verified"})
}

func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.VerifyToken(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.writeServiceError(w, "verify_token", err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "email verified"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.writeServiceError(w, "login", ErrInvalidRequest)
		return
	}
	issued, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, "login", err)
		return
	}
	writeTokens(w, issued)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.writeServiceError(w, "refresh", ErrInvalidRequest)
		return
	}
	issued, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, "refresh", err)
		return
	}
	writeTokens(w, issued)
}

// writeTokens answers in the nested {"data": {...}} envelope.
func writeTokens(w http.ResponseWriter, issued Issued) {
	writeJSON(w, http.StatusOK, map[string]tokenData{"data": {
		AccessToken:           issued.AccessToken,
		RefreshToken:          issued.RefreshToken,
		AccessTokenExpiresAt:  issued.AccessExp,
		RefreshTokenExpiresAt: issued.RefreshExp,
	}})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), claimsFrom(r.Context()).SessionID); err != nil {
		h.writeServiceError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.UserByID(r.Context(), claimsFrom(r.Context()).UserID)
	if err != nil {
		h.writeServiceError(w, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	})
}

// ---- notifications ----

func (h *Handler) handleNotifications(unreadOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.store.Notifications(r.Context(), claimsFrom(r.Context()).UserID, unreadOnly)
		if err != nil {
			h.writeServiceError(w, "notifications", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.MarkNotificationRead(r.Context(), claimsFrom(r.Context()).UserID, v1.ID(r.PathValue("id")))
	if err != nil {
		h.writeServiceError(w, "mark_read", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.MarkAllNotificationsRead(r.Context(), claimsFrom(r.Context()).UserID)
	if err != nil {
		h.writeServiceError(w, "mark_all_read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

type injectRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// handleInject stores and pushes a notification. The recipient is the
// addressed email, or the bearer's user when no email is given.
func (h *Handler) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		h.writeServiceError(w, "inject", ErrInvalidRequest)
		return
	}

	var userID string
	if req.Email != "" {
		u, err := h.store.UserByEmail(r.Context(), normalizeEmail(req.Email))
		if err != nil {
			h.writeServiceError(w, "inject", err)
			return
		}
		userID = u.ID
	} else {
		tok := bearer(r)
		if tok == "" {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "email or bearer token required")
			return
		}
		claims, err := h.svc.Authenticate(r.Context(), tok)
		if err != nil {
			h.writeServiceError(w, "inject", err)
			return
		}
		userID = claims.UserID
	}

	n, _, err := h.svc.Notify(r.Context(), userID, req.Message)
	if err != nil {
		h.writeServiceError(w, "inject", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// handlePendingVerification shows the code and link token that would have
// been mailed to ?email=.
func (h *Handler) handlePendingVerification(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.PendingVerification(r.Context(), normalizeEmail(r.URL.Query().Get("email")))
	if err != nil {
		h.writeServiceError(w, "pending_verification", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":     v.Email,
		"code":      v.Code,
		"token":     v.Token,
		"expiresAt": v.ExpiresAt,
	})
}

// handleStream holds an SSE response open, sending the connect handshake
// and then every notification published for the caller.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, CodeInternal, "streaming unsupported")
		return
	}
	claims := claimsFrom(r.Context())
	sub := h.broker.Subscribe(claims.UserID)
	if sub == nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "shutting down")
		return
	}
	defer h.broker.Unsubscribe(sub)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, v1.EventConnect, "", v1.ConnectPayload{Message: "connected", UserID: claims.UserID}); err != nil {
		return
	}
	fl.Flush()

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		t := h.clock.NewTicker(h.keepAlive)
		defer t.Stop()
		tick = t.Chan()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case n := <-sub.C():
			if err := writeEvent(w, v1.EventNotification, n.ID.String(), n); err != nil {
				h.log.Info("devserver.stream.write.fail", "user_id", claims.UserID, "err", err)
				return
			}
			fl.Flush()
		case <-tick:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

func writeEvent(w io.Writer, name, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var b strings.Builder
	if id != "" {
		b.WriteString("id: " + id + "\n")
	}
	b.WriteString("event: " + name + "\n")
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")
	_, err = io.WriteString(w, b.String())
	return err
}

// ---- schedules ----

func (h *Handler) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.Schedules(r.Context(), claimsFrom(r.Context()).UserID)
	if err != nil {
		h.writeServiceError(w, "schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var in schedule.RecurringSchedule
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		h.writeServiceError(w, "schedule_create", err)
		return
	}
	in = in.WithDefaults()
	if err := in.Validate(); err != nil {
		h.writeServiceError(w, "schedule_create", err)
		return
	}
	out, err := h.store.CreateSchedule(r.Context(), claimsFrom(r.Context()).UserID, in)
	if err != nil {
		h.writeServiceError(w, "schedule_create", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]schedule.RecurringSchedule{"data": out})
}

func (h *Handler) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.Schedule(r.Context(), claimsFrom(r.Context()).UserID, v1.ID(r.PathValue("id")))
	if err != nil {
		h.writeServiceError(w, "schedule_get", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	patch, err := readBody(w, r, h.maxBody)
	if err != nil {
		h.writeServiceError(w, "schedule_update", ErrInvalidRequest)
		return
	}
	out, err := h.store.UpdateSchedule(r.Context(), claimsFrom(r.Context()).UserID, v1.ID(r.PathValue("id")), patch)
	if err != nil {
		h.writeServiceError(w, "schedule_update", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSchedule(r.Context(), claimsFrom(r.Context()).UserID, v1.ID(r.PathValue("id"))); err != nil {
		h.writeServiceError(w, "schedule_delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleScheduleSub(w http.ResponseWriter, r *http.Request) {
	a, b := r.PathValue("a"), r.PathValue("b")
	switch {
	case a == "date":
		h.handleSchedulesOn(w, r, b)
	case b == "exceptions":
		out, err := h.store.Exceptions(r.Context(), claimsFrom(r.Context()).UserID, v1.ID(a))
		if err != nil {
			h.writeServiceError(w, "exceptions", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
	}
}

// handleSchedulesOn lists the schedules with an occurrence on day, honoring
// each schedule's exceptions.
func (h *Handler) handleSchedulesOn(w http.ResponseWriter, r *http.Request, day string) {
	d, err := time.ParseInLocation(schedule.DateLayout, day, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "date must be YYYY-MM-DD")
		return
	}
	userID := claimsFrom(r.Context()).UserID
	all, err := h.store.Schedules(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "schedules_on", err)
		return
	}

	out := []schedule.RecurringSchedule{}
	for _, s := range all {
		ex, err := h.store.Exceptions(r.Context(), userID, s.ID)
		if err != nil {
			h.writeServiceError(w, "schedules_on", err)
			return
		}
		on, err := schedule.OccursOn(s, d, ex)
		if err != nil {
			h.log.Warn("devserver.schedule.expand.fail", "schedule_id", s.ID.String(), "err", err)
			continue
		}
		if on {
			out = append(out, s)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateException(w http.ResponseWriter, r *http.Request) {
	var in schedule.Exception
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		h.writeServiceError(w, "exception_create", err)
		return
	}
	if _, err := time.Parse(schedule.DateLayout, in.ExceptionDate); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "exceptionDate must be YYYY-MM-DD")
		return
	}
	out, err := h.store.CreateException(r.Context(), claimsFrom(r.Context()).UserID, in)
	if err != nil {
		h.writeServiceError(w, "exception_create", err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleDeleteException(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteException(r.Context(), claimsFrom(r.Context()).UserID, v1.ID(r.PathValue("id"))); err != nil {
		h.writeServiceError(w, "exception_delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
