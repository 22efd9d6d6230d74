// Package web serves the recorder pages and the clip upload endpoint.
package web

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"voicecollect/internal/config"
	"voicecollect/internal/session"
	"voicecollect/internal/upload"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// PageData is what every template is executed with.
type PageData struct {
	CSRFToken string
	Words     []config.WordQuota
	Total     int
}

type Server struct {
	tmpl      *template.Template
	sessions  *session.Store
	uploads   *upload.Service
	words     []config.WordQuota
	maxUpload int64
	logger    *zap.Logger
}

func NewServer(cfg *config.Config, sessions *session.Store, uploads *upload.Service, logger *zap.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		tmpl:      tmpl,
		sessions:  sessions,
		uploads:   uploads,
		words:     cfg.Words,
		maxUpload: cfg.MaxUploadBytes,
		logger:    logger,
	}, nil
}

// Router wires every route. The CSRF check wraps the whole router so it
// also sees POSTs that would otherwise end in 404 or 405.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/legal", s.handleLegal).Methods("GET")
	r.HandleFunc("/start", s.handleStart).Methods("GET")
	r.HandleFunc("/upload", s.handleUpload).Methods("POST")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods("GET")

	assets, _ := fs.Sub(static, "static")
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(assets))))

	return s.logRequests(s.csrfProtect(r))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if session.VisitorID(r) == "" {
		s.render(w, "welcome.html", PageData{})
		return
	}
	if _, err := r.Cookie(session.DoneCookie); err == nil {
		s.render(w, "thanks.html", PageData{})
		return
	}

	tok, err := s.sessions.Token(w, r)
	if err != nil {
		s.logger.Error("issue csrf token", zap.Error(err))
		http.Error(w, "Server Error", http.StatusInternalServerError)
		return
	}
	total := 0
	for _, wq := range s.words {
		total += wq.Count
	}
	s.render(w, "record.html", PageData{CSRFToken: tok.String(), Words: s.words, Total: total})
}

func (s *Server) handleLegal(w http.ResponseWriter, r *http.Request) {
	s.render(w, "legal.html", PageData{})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := session.Start(w)
	s.logger.Debug("session started", zap.String("session_id", id))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sid := session.VisitorID(r)
	if !session.ValidID(sid) {
		http.Error(w, "No session", http.StatusBadRequest)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUpload)
	_, err := s.uploads.Save(r.Context(), r.URL.Query().Get("word"), sid, body)

	var tooBig *http.MaxBytesError
	switch {
	case err == nil:
	case errors.Is(err, upload.ErrEmptyWord), errors.Is(err, upload.ErrWordTooLong):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.As(err, &tooBig):
		http.Error(w, "Clip too large", http.StatusRequestEntityTooLarge)
		return
	default:
		http.Error(w, "Upload failed", http.StatusInternalServerError)
		return
	}

	w.Write([]byte("All good"))
}

func (s *Server) render(w http.ResponseWriter, name string, data PageData) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// csrfProtect rejects any POST whose _csrf_token parameter does not match
// the token in the signed session cookie.
func (s *Server) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if err := s.sessions.Verify(r, r.URL.Query().Get(session.TokenParam)); err != nil {
				s.logger.Warn("csrf check failed", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
