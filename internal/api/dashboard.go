package api

import (
	"net/http"

	"github.com/agrichain/marketplace/internal/middleware"
	"github.com/gorilla/mux"
)

// AdminOverviewHandler handles GET /admin/overview
func (a *App) AdminOverviewHandler(w http.ResponseWriter, r *http.Request) {
	ov, err := a.svc.Overview.AdminOverview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Overview fetched successfully", envelope{"overview": ov})
}

// FarmerOverviewHandler handles GET /farmers/{farmerId}/overview
func (a *App) FarmerOverviewHandler(w http.ResponseWriter, r *http.Request) {
	farmerID := mux.Vars(r)["farmerId"]
	if !middleware.CanActFor(r.Context(), farmerID) {
		writeError(w, r, forbidden("cannot view overview of farmer %s", farmerID))
		return
	}

	ov, err := a.svc.Overview.FarmerOverview(r.Context(), farmerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Overview fetched successfully", envelope{"overview": ov})
}

// WeatherHandler handles GET /api/data/weather?place= (or ?location=)
func (a *App) WeatherHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	place := q.Get("place")
	if place == "" {
		place = q.Get("location")
	}
	report, err := a.svc.Insights.Weather(r.Context(), place)
	if err != nil {
		writeError(w, r, err)
		return
	}
	message := "Weather fetched successfully"
	if report.Message != "" {
		message = report.Message
	}
	writeSuccess(w, http.StatusOK, message, envelope{"location": report.Location, "forecast": report.Forecast})
}

// FarmerNewsHandler handles GET /api/data/farmerNews
func (a *App) FarmerNewsHandler(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "News fetched successfully", envelope{"news": a.svc.Insights.FarmerNews(r.Context())})
}

// GeminiHandler handles POST /api/data/gemini
func (a *App) GeminiHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := a.svc.Insights.Generate(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Text processed successfully", envelope{"response": reply})
}

// FarmerInsightsHandler handles GET /api/data/farmerInsights
func (a *App) FarmerInsightsHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := a.svc.Insights.FarmerInsights(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Insights generated successfully", envelope{"summary": summary})
}

// ProductInsightsHandler handles POST /api/data/productInsights
func (a *App) ProductInsightsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Products []string `json:"products"`
		Location string   `json:"location"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	advice, err := a.svc.Insights.ProductInsights(r.Context(), req.Products, req.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Insights generated successfully", envelope{"insights": advice})
}

// FarmerTipHandler handles GET /api/data/farmerTip
func (a *App) FarmerTipHandler(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "Tip fetched successfully", envelope{"tip": a.svc.Insights.FarmerTip(r.Context())})
}
