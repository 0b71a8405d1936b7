package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"htmlsnap/snap"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.cfg.IndexHTML)))
	io.WriteString(w, s.cfg.IndexHTML)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := strings.ToLower(firstNonEmpty(q.Get("format"), "png"))
	if format != "png" && format != "svg" {
		http.Error(w, "unsupported format "+format, http.StatusBadRequest)
		return
	}

	var renderer *snap.Renderer
	switch r.Method {
	case http.MethodGet:
		target := normalizeTargetURL(q.Get("url"))
		if target == "" {
			http.Error(w, "missing url", http.StatusBadRequest)
			return
		}
		s.logger.Printf("IN render url=%s format=%s from %s", target, format, r.RemoteAddr)
		renderer = s.snap.FromRemoteFile(target)
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxMarkupBytes+1))
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > maxMarkupBytes {
			http.Error(w, "document too large", http.StatusRequestEntityTooLarge)
			return
		}
		base := normalizeTargetURL(q.Get("base"))
		s.logger.Printf("IN render markup bytes=%d base=%s format=%s from %s", len(body), base, format, r.RemoteAddr)
		renderer = s.snap.FromMarkup(string(body), base)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uri, err := s.export(r.Context(), renderer, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if q.Get("as") == "datauri" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, uri)
		return
	}
	ctype, payload, err := splitDataURI(uri)
	if err != nil {
		s.writeError(w, err)
		return
	}
	logPreview(s.logger, ctype, payload)
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Write(payload)
}

func (s *Server) export(ctx context.Context, r *snap.Renderer, format string) (string, error) {
	if format == "svg" {
		return r.ToVectorImage(ctx)
	}
	return r.ToEncodedRaster(ctx)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong\n")
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Printf("ERR %v", err)
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	var (
		fe *snap.FetchError
		ee *snap.EncodeError
		le *snap.LoadError
		de *snap.DecodeError
	)
	switch {
	case errors.As(err, &fe), errors.As(err, &ee), errors.As(err, &le):
		return http.StatusBadGateway
	case errors.As(err, &de):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func splitDataURI(uri string) (string, []byte, error) {
	meta, data, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, errors.New("malformed data uri")
	}
	ctype, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 {
		return ctype, []byte(data), nil
	}
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, err
	}
	return ctype, payload, nil
}
