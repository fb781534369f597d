package internal

import (
	"net/http"
	"strconv"

	"github.com/2beens/fitplan/internal/middleware"
	"github.com/2beens/fitplan/internal/templates"
	"github.com/2beens/fitplan/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// OpsHandler serves the operational endpoints: health, catalog inspection
// and reload, injury mapping stats.
type OpsHandler struct {
	services    *Services
	versionInfo string
}

func NewOpsHandler(services *Services, versionInfo string) *OpsHandler {
	return &OpsHandler{
		services:    services,
		versionInfo: versionInfo,
	}
}

func (h *OpsHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet).Name("healthz")
	r.HandleFunc("/catalog/stats", h.HandleCatalogStats).Methods(http.MethodGet).Name("catalog-stats")
	r.HandleFunc("/catalog/templates", h.HandleListTemplates).Methods(http.MethodGet).Name("list-templates")
	r.HandleFunc("/catalog/templates/{id}", h.HandleGetTemplate).Methods(http.MethodGet).Name("get-template")
	r.Handle("/catalog/reload", h.reloadHandler()).Methods(http.MethodPost).Name("reload-catalog")
	r.HandleFunc("/injuries", h.HandleInjuries).Methods(http.MethodGet).Name("injuries")
}

func (h *OpsHandler) reloadHandler() http.Handler {
	var handler http.Handler = http.HandlerFunc(h.HandleReload)
	if h.services.ReloadLimiter != nil {
		handler = middleware.RateLimit(h.services.ReloadLimiter, "fitplan:catalog-reload", h.services.ReloadPerMinute)(handler)
	}
	return handler
}

func (h *OpsHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.services.Catalog.Len() == 0 {
		status = "empty_catalog"
		code = http.StatusServiceUnavailable
	}
	pkg.WriteJSON(w, code, map[string]any{
		"status":      status,
		"version":     h.versionInfo,
		"templates":   h.services.Catalog.Len(),
		"injuryTypes": h.services.Injuries.Table().Len(),
	})
}

func (h *OpsHandler) HandleCatalogStats(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteJSON(w, http.StatusOK, map[string]any{
		"statistics": h.services.Catalog.Statistics(),
		"lastLoad":   h.services.Catalog.LastLoad(),
	})
}

func (h *OpsHandler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := templates.Filters{
		Type:     templates.Type(q.Get("type")),
		Goal:     q.Get("goal"),
		Location: q.Get("location"),
	}
	if filters.Type != "" && !filters.Type.Valid() {
		pkg.WriteJSONError(w, http.StatusBadRequest, "unknown template type: "+q.Get("type"))
		return
	}

	for param, dst := range map[string]*int{
		"days":     &filters.TrainingDays,
		"weeks":    &filters.Weeks,
		"minWeeks": &filters.MinWeeks,
		"maxWeeks": &filters.MaxWeeks,
	} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			pkg.WriteJSONError(w, http.StatusBadRequest, "invalid "+param+": "+raw)
			return
		}
		*dst = v
	}

	summaries := h.services.Catalog.Summaries(filters)
	pkg.WriteJSON(w, http.StatusOK, map[string]any{
		"templates": summaries,
		"count":     len(summaries),
	})
}

func (h *OpsHandler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := h.services.Catalog.GetByID(id)
	if !ok {
		pkg.WriteJSONError(w, http.StatusNotFound, "template ["+id+"] not found")
		return
	}
	pkg.WriteJSON(w, http.StatusOK, t.Summary())
}

func (h *OpsHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	report, err := h.services.ReloadCatalog(r.Context())
	if err != nil {
		log.Errorf("ops: %s", err)
		pkg.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	injuriesReloaded := false
	if len(h.services.Injuries.Paths()) > 0 {
		if err := h.services.Injuries.Reload(); err != nil {
			pkg.WriteJSONError(w, http.StatusInternalServerError, "reload injury mappings: "+err.Error())
			return
		}
		injuriesReloaded = true
	}

	pkg.WriteJSON(w, http.StatusOK, map[string]any{
		"catalog":          report,
		"injuriesReloaded": injuriesReloaded,
	})
}

func (h *OpsHandler) HandleInjuries(w http.ResponseWriter, _ *http.Request) {
	table := h.services.Injuries.Table()
	pkg.WriteJSON(w, http.StatusOK, map[string]any{
		"codes":      table.Codes(),
		"statistics": table.Statistics(),
		"issues":     table.ValidateSubstitutes(),
	})
}
