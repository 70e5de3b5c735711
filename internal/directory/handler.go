// internal/directory/handler.go
package directory

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"sipinjam/internal/httpx"
)

type Handler struct {
	service  Service
	validate *validator.Validate
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// StudentRoutes mounts the student CRUD endpoints.
func (h *Handler) StudentRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListStudents)
	r.Post("/", h.handleCreateStudent)
	r.Get("/{id}", h.handleGetStudent)
	r.Put("/{id}", h.handleUpdateStudent)
	r.Delete("/{id}", h.handleDeleteStudent)
	return r
}

// TeacherRoutes mounts the teacher CRUD endpoints.
func (h *Handler) TeacherRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListTeachers)
	r.Post("/", h.handleCreateTeacher)
	r.Get("/{id}", h.handleGetTeacher)
	r.Put("/{id}", h.handleUpdateTeacher)
	r.Delete("/{id}", h.handleDeleteTeacher)
	return r
}

// HandleLookup resolves a borrower by role and raw identifier:
// GET /borrowers/{role}/{id}.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ref, err := h.service.LookupBorrower(r.Context(), role, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ref)
}

type studentRequest struct {
	NISIN    string `json:"nisin" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Major    string `json:"major"`
	Cohort   string `json:"cohort"`
	Active   *bool  `json:"active,omitempty"`
}

type teacherRequest struct {
	NIP      string `json:"nip" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Subject  string `json:"subject"`
	Active   *bool  `json:"active,omitempty"`
}

func (h *Handler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeStudent(w, r)
	if !ok {
		return
	}
	st, err := h.service.CreateStudent(r.Context(), req.toInput())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, st)
}

func (h *Handler) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid student id")
		return
	}
	st, err := h.service.StudentByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ListStudents(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, students)
}

func (h *Handler) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid student id")
		return
	}
	req, ok := h.decodeStudent(w, r)
	if !ok {
		return
	}
	st, err := h.service.UpdateStudent(r.Context(), id, req.toInput())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid student id")
		return
	}
	if err := h.service.DeleteStudent(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTeacher(w, r)
	if !ok {
		return
	}
	t, err := h.service.CreateTeacher(r.Context(), req.toInput())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid teacher id")
		return
	}
	t, err := h.service.TeacherByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.service.ListTeachers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, teachers)
}

func (h *Handler) handleUpdateTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid teacher id")
		return
	}
	req, ok := h.decodeTeacher(w, r)
	if !ok {
		return
	}
	t, err := h.service.UpdateTeacher(r.Context(), id, req.toInput())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid teacher id")
		return
	}
	if err := h.service.DeleteTeacher(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeStudent(w http.ResponseWriter, r *http.Request) (studentRequest, bool) {
	var req studentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) decodeTeacher(w http.ResponseWriter, r *http.Request) (teacherRequest, bool) {
	var req teacherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return req, false
	}
	return req, true
}

func (req studentRequest) toInput() StudentInput {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return StudentInput{
		NISIN:    req.NISIN,
		FullName: req.FullName,
		Major:    req.Major,
		Cohort:   req.Cohort,
		Active:   active,
	}
}

func (req teacherRequest) toInput() TeacherInput {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return TeacherInput{
		NIP:      req.NIP,
		FullName: req.FullName,
		Subject:  req.Subject,
		Active:   active,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBorrowerNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBorrowerInactive), errors.Is(err, ErrDuplicateKey):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRateLimited):
		httpx.WriteError(w, http.StatusTooManyRequests, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
