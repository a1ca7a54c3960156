package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"breakoutexecutor/src/model"
)

type pairLister interface {
	ListAll(ctx context.Context) ([]model.PairConfig, error)
}

func ListPairsHandler(repo pairLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pairs, err := repo.ListAll(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list pairs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if pairs == nil {
			pairs = []model.PairConfig{}
		}
		writeJSON(w, pairs, "pair list")
	}
}
