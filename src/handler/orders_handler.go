package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
)

type orderSearcher interface {
	Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error)
}

// SearchOrdersHandler lists orders newest first.
// Supports pagination and filters (symbol, status, createdFrom, createdTo).
func SearchOrdersHandler(repo orderSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var status *model.OrderStatus
		if v := q.Get("status"); v != "" {
			s := model.OrderStatus(v)
			switch s {
			case model.OrderStatusOpen, model.OrderStatusFilled, model.OrderStatusCanceled, model.OrderStatusExpired:
			default:
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			status = &s
		}

		createdFrom, err := optionalTime(q, "createdFrom")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		createdTo, err := optionalTime(q, "createdTo")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, offset, err := pagination(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		orders, err := repo.Search(r.Context(), repository.OrderSearchOptions{
			Symbol:        optionalString(q, "symbol"),
			Status:        status,
			CreatedAfter:  createdFrom,
			CreatedBefore: createdTo,
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if orders == nil {
			orders = []model.Order{}
		}
		writeJSON(w, orders, "order search")
	}
}
