package handlers

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/marcogenualdo/ridegate/internal/auth"
	"github.com/marcogenualdo/ridegate/internal/fallbackui"
)

//go:embed templates/*
var templatesFS embed.FS

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/*.html")
}

// sessionView is a session as shown to the page. The session id stays in
// the HttpOnly cookie.
type sessionView struct {
	SubjectID   string            `json:"subject_id"`
	DisplayName string            `json:"display_name"`
	Email       string            `json:"email,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Provider    auth.ProviderKind `json:"provider"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

func viewSession(s *auth.Session) *sessionView {
	if s == nil {
		return nil
	}
	return &sessionView{
		SubjectID:   s.SubjectID,
		DisplayName: s.DisplayName,
		Email:       s.Email,
		AvatarURL:   s.AvatarURL,
		Provider:    s.Provider,
		ExpiresAt:   s.ExpiresAt,
	}
}

type noticeView struct {
	Level   fallbackui.Level `json:"level"`
	Title   string           `json:"title,omitempty"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

func viewNotices(p *fallbackui.Page) []noticeView {
	out := make([]noticeView, 0, len(p.Notices))
	for _, n := range p.Notices {
		out = append(out, noticeView{Level: n.Level, Title: n.Title, Message: n.Message, Hint: n.Hint})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success   bool           `json:"success"`
	ErrorKind auth.ErrorKind `json:"error_kind,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
