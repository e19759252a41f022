package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmail-engine/internal/models"
)

func TestBuildSecondaryQuery(t *testing.T) {
	user := &models.User{
		ID:                  7,
		PreferredCategories: []string{"engineering", "data"},
		PreferredPrefecture: "tokyo",
	}

	query := buildSecondaryQuery(user, 80)

	assert.Equal(t, 80, query["size"])

	boolQuery := query["query"].(map[string]interface{})["bool"].(map[string]interface{})

	// Preferences boost relevance but never filter the pool down.
	should := boolQuery["should"].([]map[string]interface{})
	require.Len(t, should, 2)

	filter := boolQuery["filter"].([]map[string]interface{})
	require.Len(t, filter, 1)
	assert.Equal(t, true, filter[0]["term"].(map[string]interface{})["active"])

	// Deterministic ordering: score, then recency, then id.
	sorts := query["sort"].([]map[string]interface{})
	require.Len(t, sorts, 3)
	assert.Contains(t, sorts[0], "_score")
	assert.Contains(t, sorts[1], "published_at")
	assert.Contains(t, sorts[2], "id")
}

func TestBuildSecondaryQuery_NoPreferences(t *testing.T) {
	query := buildSecondaryQuery(&models.User{ID: 7}, 40)

	boolQuery := query["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.NotContains(t, boolQuery, "should")
}

func TestESJobDoc_DecodesIndexFieldNames(t *testing.T) {
	raw := []byte(`{
		"id": 42,
		"title": "Backend Engineer",
		"free_text": "golang postgres kubernetes",
		"category": "engineering",
		"prefecture": "osaka",
		"remote_allowed": true,
		"flexible_schedule": true,
		"salary_min": 300000,
		"salary_max": 450000,
		"published_at": "2026-08-20T09:00:00Z"
	}`)

	var doc esJobDoc
	require.NoError(t, json.Unmarshal(raw, &doc))

	// The index stores snake_case field names; every scoring input must
	// survive the round trip into the domain model.
	job := doc.toJob()
	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, "golang postgres kubernetes", job.FreeText)
	assert.Equal(t, 300000, job.SalaryMin)
	assert.Equal(t, 450000, job.SalaryMax)
	assert.True(t, job.RemoteAllowed)
	assert.True(t, job.FlexibleSchedule)
	assert.False(t, job.PublishedAt.IsZero())
}
