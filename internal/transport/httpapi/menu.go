package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

func (a *API) listMenu(w http.ResponseWriter, r *http.Request) {
	a.writeMenu(w, r, true)
}

func (a *API) listFullMenu(w http.ResponseWriter, r *http.Request) {
	if _, err := a.staffActor(r); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeMenu(w, r, false)
}

func (a *API) writeMenu(w http.ResponseWriter, r *http.Request, onlyAvailable bool) {
	items, err := a.catalog.List(r.Context(), onlyAvailable)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result := make([]menuItemResponse, 0, len(items))
	for _, item := range items {
		result = append(result, newMenuItemResponse(item))
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) getMenuItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.catalog.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMenuItemResponse(item))
}

func (a *API) createMenuItem(w http.ResponseWriter, r *http.Request) {
	if _, err := a.staffActor(r); err != nil {
		a.writeError(w, r, err)
		return
	}

	req, err := a.decodeMenuItem(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	item, err := a.catalog.Create(r.Context(), req.toDomain(""))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logger.WithField("menu_item_id", item.ID).Info("menu item created")
	writeJSON(w, http.StatusCreated, newMenuItemResponse(item))
}

func (a *API) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	if _, err := a.staffActor(r); err != nil {
		a.writeError(w, r, err)
		return
	}

	req, err := a.decodeMenuItem(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	item, err := a.catalog.Update(r.Context(), req.toDomain(chi.URLParam(r, "id")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMenuItemResponse(item))
}

func (a *API) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	if _, err := a.staffActor(r); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decodeMenuItem(w http.ResponseWriter, r *http.Request) (menuItemRequest, error) {
	var req menuItemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return menuItemRequest{}, invalidRequest(err)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := a.validate.Struct(req); err != nil {
		return menuItemRequest{}, invalidRequest(err)
	}
	return req, nil
}

func (a *API) staffActor(r *http.Request) (domain.Actor, error) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	if !actor.CanManageOrders() {
		return domain.Actor{}, domain.ErrForbidden
	}
	return actor, nil
}
