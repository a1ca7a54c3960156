package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

func optionalString(q url.Values, key string) *string {
	if v := q.Get(key); v != "" {
		return &v
	}
	return nil
}

func optionalTime(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}
	return &parsed, nil
}

// pagination reads page and pageSize and returns limit and offset.
func pagination(q url.Values) (int, int, error) {
	page := 1
	if v := q.Get("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("invalid page")
		}
		page = parsed
	}

	size := defaultPageSize
	if v := q.Get("pageSize"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxPageSize {
			return 0, 0, fmt.Errorf("invalid pageSize")
		}
		size = parsed
	}

	return size, (page - 1) * size, nil
}

func writeJSON(w http.ResponseWriter, body interface{}, what string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Errorf("failed to encode %s response", what)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
