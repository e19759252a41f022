package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/common/logger"
	"jobmail-engine/internal/models"
)

// ESSecondaryPool queries Elasticsearch for the broader candidate set the
// supplement engine draws from. The query relaxes the primary filters:
// it biases toward the user's preferences but does not require them.
type ESSecondaryPool struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

var _ SecondaryPool = (*ESSecondaryPool)(nil)

func NewESSecondaryPool(client *elasticsearch.Client, index string, log logger.Logger) *ESSecondaryPool {
	return &ESSecondaryPool{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "es-secondary-pool"}),
	}
}

func (s *ESSecondaryPool) SearchSecondary(ctx context.Context, user *models.User, limit int) ([]models.Job, error) {
	query := buildSecondaryQuery(user, limit)

	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewSearchTimeoutError(fmt.Sprintf("userId: %d", user.ID))
		}
		return nil, apperrors.NewSearchFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewSearchFailedError(fmt.Errorf("search status %s", res.Status()))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source esJobDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchFailedError(err)
	}

	jobs := make([]models.Job, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		jobs = append(jobs, h.Source.toJob())
	}
	return jobs, nil
}

// esJobDoc mirrors the job index mapping, which stores fields under their
// snake_case column names.
type esJobDoc struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Headline         string    `json:"headline"`
	Description      string    `json:"description"`
	FreeText         string    `json:"free_text"`
	Category         string    `json:"category"`
	Prefecture       string    `json:"prefecture"`
	Region           string    `json:"region"`
	RemoteAllowed    bool      `json:"remote_allowed"`
	FlexibleSchedule bool      `json:"flexible_schedule"`
	SalaryMin        int       `json:"salary_min"`
	SalaryMax        int       `json:"salary_max"`
	FeatureVector    []float64 `json:"feature_vector"`
	PublishedAt      time.Time `json:"published_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (d esJobDoc) toJob() models.Job {
	return models.Job{
		ID:               d.ID,
		Title:            d.Title,
		Headline:         d.Headline,
		Description:      d.Description,
		FreeText:         d.FreeText,
		Category:         d.Category,
		Prefecture:       d.Prefecture,
		Region:           d.Region,
		RemoteAllowed:    d.RemoteAllowed,
		FlexibleSchedule: d.FlexibleSchedule,
		SalaryMin:        d.SalaryMin,
		SalaryMax:        d.SalaryMax,
		FeatureVector:    d.FeatureVector,
		PublishedAt:      d.PublishedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// buildSecondaryQuery boosts the user's preferred categories and location
// through should clauses; nothing is mandatory, so the pool stays broad.
func buildSecondaryQuery(user *models.User, limit int) map[string]interface{} {
	var should []map[string]interface{}

	if len(user.PreferredCategories) > 0 {
		should = append(should, map[string]interface{}{
			"terms": map[string]interface{}{"category": user.PreferredCategories},
		})
	}
	if user.PreferredPrefecture != "" {
		should = append(should, map[string]interface{}{
			"term": map[string]interface{}{"prefecture": user.PreferredPrefecture},
		})
	}

	boolQuery := map[string]interface{}{
		"filter": []map[string]interface{}{
			{"term": map[string]interface{}{"active": true}},
		},
	}
	if len(should) > 0 {
		boolQuery["should"] = should
	}

	if limit <= 0 {
		limit = 200
	}

	return map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"published_at": map[string]interface{}{"order": "desc"}},
			{"id": map[string]interface{}{"order": "asc"}},
		},
	}
}
