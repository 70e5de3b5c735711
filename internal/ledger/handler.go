// internal/ledger/handler.go
package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"sipinjam/internal/directory"
	"sipinjam/internal/httpx"
	"sipinjam/internal/inventory"
)

const dateLayout = "2006-01-02"

type Handler struct {
	service  Service
	validate *validator.Validate
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// Routes mounts the loan ledger endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleBorrow)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/return", h.handleReturn)
	r.Get("/{id}/history", h.handleHistory)
	return r
}

type borrowRequest struct {
	BorrowerID string `json:"borrower_id" validate:"required"`
	Role       string `json:"role" validate:"required,oneof=student teacher"`
	ItemID     int64  `json:"item_id" validate:"required,gt=0"`
	BorrowDate string `json:"borrow_date" validate:"required,datetime=2006-01-02"`
	DueDate    string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Note       string `json:"note"`
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	borrowDate, _ := time.Parse(dateLayout, req.BorrowDate)
	dueDate, _ := time.Parse(dateLayout, req.DueDate)

	loan, err := h.service.Borrow(r.Context(), BorrowRequest{
		Role:       req.Role,
		BorrowerID: req.BorrowerID,
		ItemID:     req.ItemID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		Note:       req.Note,
		Actor:      actor(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	loan, err := h.service.Return(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

type updateRequest struct {
	BorrowerID string `json:"borrower_id" validate:"required"`
	Role       string `json:"role" validate:"required,oneof=student teacher"`
	ItemID     int64  `json:"item_id" validate:"required,gt=0"`
	BorrowDate string `json:"borrow_date" validate:"required,datetime=2006-01-02"`
	DueDate    string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Note       string `json:"note"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	borrowDate, _ := time.Parse(dateLayout, req.BorrowDate)
	dueDate, _ := time.Parse(dateLayout, req.DueDate)

	loan, err := h.service.Update(r.Context(), id, UpdateRequest{
		Role:       req.Role,
		BorrowerID: req.BorrowerID,
		ItemID:     req.ItemID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		Note:       req.Note,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	loan, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	loans, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

// ParseFilter reads the optional role/status/date-range query parameters.
func ParseFilter(r *http.Request) (Filter, error) {
	var f Filter
	q := r.URL.Query()

	if v := q.Get("role"); v != "" {
		role, err := directory.ParseRole(v)
		if err != nil {
			return f, err
		}
		f.Role = &role
	}
	if v := q.Get("status"); v != "" {
		switch Status(v) {
		case StatusActive, StatusReturned, StatusExpired:
			status := Status(v)
			f.Status = &status
		default:
			return f, errors.New("unknown status " + strconv.Quote(v))
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	return f, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDateRange):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrLoanNotFound),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, directory.ErrBorrowerNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyReturned),
		errors.Is(err, inventory.ErrItemUnavailable),
		errors.Is(err, directory.ErrBorrowerInactive):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func actor(r *http.Request) string {
	if v := r.Header.Get("X-User-Name"); v != "" {
		return v
	}
	return "system"
}

func pathUUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}
