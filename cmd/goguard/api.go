package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/MrEthical07/goGuard/middleware"
)

const maxBodyBytes = 1 << 20

type subjectBody struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"created_at"`
	IsAdmin     bool      `json:"is_admin"`
	IsStaff     bool      `json:"is_staff"`
	IsActive    bool      `json:"is_active"`
	BannedUntil time.Time `json:"banned_until"`
}

type authorizeBody struct {
	Subject subjectBody `json:"subject"`
	Action  string      `json:"action"`
	Forum   struct {
		ID                  string `json:"id"`
		CreateThreadPackage string `json:"create_thread_package"`
		ReplyPackage        string `json:"reply_package"`
	} `json:"forum"`
	Thread struct {
		ID       string `json:"id"`
		AuthorID string `json:"author_id"`
		Locked   bool   `json:"locked"`
	} `json:"thread"`
	Post struct {
		ID       string `json:"id"`
		AuthorID string `json:"author_id"`
	} `json:"post"`
	Content       string `json:"content"`
	CaptchaSolved bool   `json:"captcha_solved"`
}

func (b authorizeBody) request() goGuard.Request {
	return goGuard.Request{
		Subject: goGuard.Subject{
			ID:          b.Subject.ID,
			Username:    b.Subject.Username,
			CreatedAt:   b.Subject.CreatedAt,
			IsAdmin:     b.Subject.IsAdmin,
			IsStaff:     b.Subject.IsStaff,
			IsActive:    b.Subject.IsActive,
			BannedUntil: b.Subject.BannedUntil,
		},
		Action:        goGuard.Action(b.Action),
		Forum:         goGuard.Forum{ID: b.Forum.ID, CreateThreadPackage: b.Forum.CreateThreadPackage, ReplyPackage: b.Forum.ReplyPackage},
		Thread:        goGuard.Thread{ID: b.Thread.ID, AuthorID: b.Thread.AuthorID, Locked: b.Thread.Locked},
		Post:          goGuard.Post{ID: b.Post.ID, AuthorID: b.Post.AuthorID},
		Content:       b.Content,
		CaptchaSolved: b.CaptchaSolved,
	}
}

type decisionBody struct {
	Allowed   bool   `json:"allowed"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

type api struct {
	engine *goGuard.Engine
	logger *slog.Logger
}

// routes mounts the sidecar API. Denials and engine errors are rendered by
// middleware.WriteError so every endpoint shares one status mapping.
func (a *api) routes(trustProxy bool) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(a.logRequests)
	r.Use(middleware.ClientIP(trustProxy))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", prometheus.NewCollector(a.engine).Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Gate(a.engine, decodeAuthorize)).Post("/authorize", a.authorized)
		r.Post("/subjects/{subjectID}/actions", a.recordAction)
		r.Get("/settings", a.showSettings)
		r.Get("/packages", a.listPackages)

		r.Post("/recovery", a.issueRecovery)
		r.Get("/recovery/{token}", a.checkRecovery)
		r.Post("/recovery/{token}", a.consumeRecovery)
	})
	return r
}

func decodeAuthorize(r *http.Request) (goGuard.Request, error) {
	var body authorizeBody
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return goGuard.Request{}, fmt.Errorf("%w: %v", middleware.ErrMalformedRequest, err)
	}
	req := body.request()
	if (req.Action == goGuard.ActionCreateThread || req.Action == goGuard.ActionNewReply) && req.Subject.CreatedAt.IsZero() {
		return goGuard.Request{}, fmt.Errorf("%w: subject.created_at is required for %s", middleware.ErrMalformedRequest, req.Action)
	}
	return req, nil
}

func (a *api) authorized(w http.ResponseWriter, r *http.Request) {
	d, _ := middleware.DecisionFromContext(r.Context())
	writeJSON(w, http.StatusOK, decisionBody{Allowed: d.Allowed, Content: d.Content, Truncated: d.Truncated})
}

func (a *api) recordAction(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.RecordAction(r.Context(), chi.URLParam(r, "subjectID")); err != nil {
		middleware.WriteError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) showSettings(w http.ResponseWriter, r *http.Request) {
	snap, err := a.engine.Settings(r.Context())
	if err != nil {
		middleware.WriteError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, snap.Map())
}

func (a *api) listPackages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.AuthPackages())
}

// issueRecovery always answers 202 for known and unknown usernames alike.
func (a *api) issueRecovery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		middleware.WriteError(w, middleware.ErrMalformedRequest, 0)
		return
	}
	if err := a.engine.IssueRecovery(r.Context(), body.Username); err != nil {
		middleware.WriteError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) checkRecovery(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.CheckRecovery(r.Context(), chi.URLParam(r, "token")); err != nil {
		middleware.WriteError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) consumeRecovery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		middleware.WriteError(w, middleware.ErrMalformedRequest, 0)
		return
	}
	res, err := a.engine.ConsumeRecovery(r.Context(), chi.URLParam(r, "token"), body.Credential)
	if err != nil {
		if !errors.Is(err, goGuard.ErrTokenInvalid) {
			a.logger.ErrorContext(r.Context(), "recovery consume failed", slog.String("error", err.Error()))
		}
		middleware.WriteError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subject_id": res.SubjectID})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		a.logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.code),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
