package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/imaging"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/go-chi/chi/v5"
)

// decodeRequest reads a projectRequest, rejecting unknown fields and
// trailing data.
func decodeRequest(r *http.Request) (*projectRequest, error) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req projectRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON body")
	}
	return &req, nil
}

// writeDecodeError answers a malformed body with 400, or 413 when the body
// exceeded the limit.
func (s *Server) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		s.writeServiceError(w, r, err)
		return
	}
	if errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "empty request body", nil)
		return
	}
	writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed request body: %v", err), nil)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	p, err := s.projects.CreateProject(r.Context(), req.draft())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "project created", "id", p.ID, "admin", subjectFrom(r.Context()))
	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	p, err := s.projects.UpdateProject(r.Context(), id, req.draft())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "project updated", "id", id, "admin", subjectFrom(r.Context()))
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.history.ListHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(entries))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	err := s.audit.Check(r.Context(), chi.URLParam(r, "id"))

	var warn *common.ConsistencyWarning
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, auditResponse{Consistent: true})
	case errors.As(err, &warn):
		writeJSON(w, http.StatusOK, auditResponse{Stored: &warn.Stored, Expected: &warn.Expected})
	default:
		s.writeServiceError(w, r, err)
	}
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	p, err := s.audit.Repair(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "project repaired", "id", p.ID, "admin", subjectFrom(r.Context()))
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

func (s *Server) handleOriginal(w http.ResponseWriter, r *http.Request) {
	url, err := s.projects.OriginalURL(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "kind"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// handlePublicProject serves the donor view. Any read failure is an error
// response; a project is never rendered without its history.
func (s *Server) handlePublicProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.projects.GetProject(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	entries, err := s.history.ListHistory(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, publicProjectResponse{
		projectResponse: toProjectResponse(p),
		History:         toHistoryResponse(entries),
	})
}

func (s *Server) handlePublicImage(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(p *models.Project) string { return p.Image })
}

func (s *Server) handlePublicQR(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(p *models.Project) string { return p.QRCode })
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, pick func(*models.Project) string) {
	p, err := s.projects.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	dataURL := pick(p)
	if dataURL == "" {
		writeError(w, http.StatusNotFound, "no image", nil)
		return
	}

	a, err := imaging.ParseDataURL(dataURL)
	if err != nil {
		s.logger.Error(r.Context(), "stored artifact unreadable", "id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), nil)
		return
	}

	w.Header().Set("Content-Type", a.Format)
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}
