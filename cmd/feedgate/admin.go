package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/feedgate/feedgate/pkg/invalidate"
	"github.com/feedgate/feedgate/pkg/routes"
)

// adminHandler exposes cache and definition management. It is expected to
// sit behind the host's own authentication; feedgate does none itself.
type adminHandler struct {
	trigger *invalidate.Trigger
	source  *routes.MemorySource
	logger  zerolog.Logger
}

func newAdminHandler(trigger *invalidate.Trigger, source *routes.MemorySource, logger zerolog.Logger) http.Handler {
	a := &adminHandler{trigger: trigger, source: source, logger: logger}

	r := chi.NewRouter()
	r.Post("/cache/clear", a.clearCache)
	r.Post("/cache/warm", a.warmCache)
	r.Post("/invalidate", a.invalidateContent)
	r.Get("/routes", a.listDefinitions)
	r.Post("/routes", a.addRoute)
	r.Delete("/routes/{slug}", a.deleteRoute)
	r.Post("/redirects", a.addRedirect)
	r.Delete("/redirects", a.deleteRedirect)
	return r
}

func (a *adminHandler) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := a.trigger.ClearAll(r.Context()); err != nil {
		a.fail(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (a *adminHandler) warmCache(w http.ResponseWriter, r *http.Request) {
	warmed, err := a.trigger.Warm(r.Context())
	if err != nil {
		a.logger.Warn().Err(err).Int("warmed", warmed).Msg("Warm finished with errors")
	}
	writeJSON(w, http.StatusOK, map[string]int{"warmed": warmed})
}

func (a *adminHandler) invalidateContent(w http.ResponseWriter, r *http.Request) {
	postType := r.URL.Query().Get("post_type")
	if postType == "" {
		a.fail(w, errors.New("post_type is required"), http.StatusBadRequest)
		return
	}
	postID, _ := strconv.ParseInt(r.URL.Query().Get("post_id"), 10, 64)

	evicted, err := a.trigger.OnContentChanged(r.Context(), postType, postID)
	if err != nil {
		a.fail(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"evicted": evicted})
}

func (a *adminHandler) listDefinitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.source.Snapshot())
}

func (a *adminHandler) addRoute(w http.ResponseWriter, r *http.Request) {
	var route routes.FeedRoute
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		a.fail(w, err, http.StatusBadRequest)
		return
	}
	if err := a.source.AddRoute(route); err != nil {
		a.fail(w, err, definitionErrorStatus(err))
		return
	}
	a.logger.Info().Str("slug", route.Slug).Msg("Route added")
	writeJSON(w, http.StatusCreated, route)
}

func (a *adminHandler) deleteRoute(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := a.source.DeleteRoute(slug); err != nil {
		a.fail(w, err, definitionErrorStatus(err))
		return
	}
	a.logger.Info().Str("slug", slug).Msg("Route deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminHandler) addRedirect(w http.ResponseWriter, r *http.Request) {
	var rule routes.RedirectRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		a.fail(w, err, http.StatusBadRequest)
		return
	}
	if err := a.source.AddRedirect(rule); err != nil {
		a.fail(w, err, definitionErrorStatus(err))
		return
	}
	a.logger.Info().Str("from", rule.FromPath).Msg("Redirect added")
	writeJSON(w, http.StatusCreated, rule)
}

func (a *adminHandler) deleteRedirect(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		a.fail(w, errors.New("from is required"), http.StatusBadRequest)
		return
	}
	if err := a.source.DeleteRedirect(from); err != nil {
		a.fail(w, err, definitionErrorStatus(err))
		return
	}
	a.logger.Info().Str("from", from).Msg("Redirect deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminHandler) fail(w http.ResponseWriter, err error, status int) {
	if status >= 500 {
		a.logger.Error().Err(err).Msg("Admin operation failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// definitionErrorStatus maps definition errors onto HTTP statuses.
func definitionErrorStatus(err error) int {
	switch {
	case errors.Is(err, routes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, routes.ErrSlugConflict):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
