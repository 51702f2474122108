package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/service/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

func (a *API) placeOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		a.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, r, invalidRequest(err))
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.writeError(w, r, invalidRequest(err))
		return
	}

	place := func(ctx context.Context) idempotency.Response {
		order, err := a.orders.PlaceOrder(ctx, actor, req.cart())
		if err != nil {
			status, payload := errorBody(err)
			if status >= http.StatusInternalServerError {
				a.logger.WithError(err).WithFields(log.Fields{
					"user_id":    actor.UserID,
					"status":     status,
					"request_id": middleware.GetReqID(r.Context()),
				}).Error("order placement failed")
			}
			return idempotency.Response{Status: status, Body: encodeJSON(payload)}
		}
		return idempotency.Response{Status: http.StatusCreated, Body: encodeJSON(newOrderResponse(order))}
	}

	rawKey := r.Header.Get(headerIdempotencyKey)
	if strings.TrimSpace(rawKey) == "" {
		resp := place(r.Context())
		writeRaw(w, resp.Status, resp.Body)
		return
	}
	key, err := domain.NewPlacementKey(actor.UserID, rawKey)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp, replayed, err := a.guard.Do(r.Context(), key, idempotency.HashRequest(r.Method, r.URL.Path, body), place)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set(headerReplayed, "true")
	}
	writeRaw(w, resp.Status, resp.Body)
}

func (a *API) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		a.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		a.writeError(w, r, invalidRequest(err))
		return
	}

	order, err := a.orders.SetStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		a.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	details, err := a.orders.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDetailsResponse(details))
}

func (a *API) listMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		a.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	query, err := a.decodeListQuery(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	orders, err := a.orders.ListMine(r.Context(), actor, query.Limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(orders))
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		a.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	query, err := a.decodeListQuery(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	orders, err := a.orders.ListAll(r.Context(), actor, query.Status, query.Limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(orders))
}

func (a *API) salesSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		a.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	summary, err := a.orders.Summary(r.Context(), actor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (a *API) decodeListQuery(r *http.Request) (listOrdersQuery, error) {
	var query listOrdersQuery
	if err := a.query.Decode(&query, r.URL.Query()); err != nil {
		return listOrdersQuery{}, invalidRequest(err)
	}
	if err := a.validate.Struct(query); err != nil {
		return listOrdersQuery{}, invalidRequest(fmt.Errorf("limit must be between 0 and 100: %w", err))
	}
	return query, nil
}
