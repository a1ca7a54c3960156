package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
)

type positionSearcher interface {
	Search(ctx context.Context, options repository.PositionSearchOptions) ([]model.Position, error)
}

// SearchPositionsHandler lists positions newest first, filtered by symbol and status.
func SearchPositionsHandler(repo positionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var status *model.PositionStatus
		if v := q.Get("status"); v != "" {
			s := model.PositionStatus(v)
			if s != model.PositionStatusOpen && s != model.PositionStatusClosed {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			status = &s
		}

		limit, offset, err := pagination(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		positions, err := repo.Search(r.Context(), repository.PositionSearchOptions{
			Symbol: optionalString(q, "symbol"),
			Status: status,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if positions == nil {
			positions = []model.Position{}
		}
		writeJSON(w, positions, "position search")
	}
}
