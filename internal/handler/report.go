package handler

import (
	"net/http"

	"github.com/google/uuid"
)

type productReportResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	TotalQuantity int64     `json:"total_quantity"`
	TotalPrice    int64     `json:"total_price"`
}

// ProductReports handles GET /api/product-reports?start_date=&end_date=.
func (h *Handler) ProductReports(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "start_date", false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := queryTime(r, "end_date", true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reports, err := h.reports.ByClosureWindow(r.Context(), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]productReportResponse, 0, len(reports))
	for _, rep := range reports {
		resp = append(resp, productReportResponse{
			ID:            rep.ID,
			Name:          rep.Name,
			Description:   rep.Description,
			TotalQuantity: rep.TotalQuantity,
			TotalPrice:    rep.TotalPrice,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}
