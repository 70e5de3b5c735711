package report

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sipinjam/internal/httpx"
	"sipinjam/internal/inventory"
	"sipinjam/internal/ledger"
)

type Handler struct {
	loans ledger.Service
	items inventory.Service
}

func NewHandler(loans ledger.Service, items inventory.Service) *Handler {
	return &Handler{loans: loans, items: items}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/loans", h.handleLoans)
	return r
}

// handleLoans serves GET /reports/loans. Accepts the same filters as the
// loan listing plus format=csv|json (json by default).
func (h *Handler) handleLoans(w http.ResponseWriter, r *http.Request) {
	filter, err := ledger.ParseFilter(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	loans, err := h.loans.List(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ids := make([]int64, 0, len(loans))
	seen := make(map[int64]struct{}, len(loans))
	for _, loan := range loans {
		if _, ok := seen[loan.ItemID]; ok {
			continue
		}
		seen[loan.ItemID] = struct{}{}
		ids = append(ids, loan.ItemID)
	}
	names, err := h.items.ItemNames(r.Context(), ids)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := Build(loans, names)

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="loans.csv"`)
		if err := WriteCSV(w, rows); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}
