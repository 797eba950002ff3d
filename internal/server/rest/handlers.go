package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// maxJSONBody bounds non-upload request bodies.
const maxJSONBody = 1 << 20

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type textToAudioRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type conversionResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type fileInfo struct {
	Filename     string    `json:"filename"`
	OriginalName *string   `json:"original_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at"`
	DownloadURL  string    `json:"download_url"`
}

type filesResponse struct {
	Total int        `json:"total"`
	Files []fileInfo `json:"files"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "gophaudio: text and video to audio conversion",
		"version": s.opts.Version,
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for _, c := range s.checks {
		if err := c.Pinger.Ping(ctx); err != nil {
			resp.Checks[c.Name] = "error: " + err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tok, err := s.users.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok.AccessToken, TokenType: tok.TokenType})
}

// token accepts either JSON {email,password} or the OAuth2 password form
// (username, password).
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		var err error
		if mt == "multipart/form-data" {
			err = r.ParseMultipartForm(maxJSONBody)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: malformed form", common.ErrValidation))
			return
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tok, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok.AccessToken, TokenType: tok.TokenType})
}

func (s *Server) myFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.artifacts.List(r.Context(), userFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := filesResponse{Total: len(list), Files: make([]fileInfo, 0, len(list))}
	for _, a := range list {
		resp.Files = append(resp.Files, s.fileInfo(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fileInfo(a *models.Artifact) fileInfo {
	return fileInfo{
		Filename:     a.Filename,
		OriginalName: a.OriginalName,
		FileType:     string(a.Kind),
		FileSize:     a.Size,
		CreatedAt:    a.CreatedAt,
		DownloadURL:  s.artifacts.DownloadURL(a.Filename),
	}
}

func (s *Server) textToAudio(w http.ResponseWriter, r *http.Request) {
	var req textToAudioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := s.conversion.TextToAudio(r.Context(), userFromContext(r.Context()), req.Text, req.Language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversionResponse{URL: s.artifacts.DownloadURL(a.Filename), Filename: a.Filename})
}

// videoToAudio streams the multipart "file" part into the conversion
// pipeline without buffering the whole upload in memory.
func (s *Server) videoToAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: expected multipart/form-data upload", common.ErrValidation))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, r, fmt.Errorf("%w: missing file field", common.ErrValidation))
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, r, err)
				return
			}
			s.writeError(w, r, fmt.Errorf("%w: malformed multipart body", common.ErrValidation))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		a, err := s.conversion.VideoToAudio(r.Context(), userFromContext(r.Context()), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conversionResponse{URL: s.artifacts.DownloadURL(a.Filename), Filename: a.Filename})
		return
	}
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	a, data, err := s.artifacts.Download(r.Context(), userFromContext(r.Context()), filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteAccount(r.Context(), userFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "" && mt != "application/json" && !strings.HasSuffix(mt, "+json") {
		return fmt.Errorf("%w: expected application/json", common.ErrValidation)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: malformed JSON body", common.ErrValidation)
	}
	return nil
}
