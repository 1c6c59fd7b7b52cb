package learning

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

func shapeFromJSON(t *testing.T, doc string) PathShape {
	t.Helper()
	var shape PathShape
	require.NoError(t, json.Unmarshal([]byte(doc), &shape))
	return shape
}

func TestNormalize(t *testing.T) {
	shape := shapeFromJSON(t, `{
		"learning_path": {
			"path_name": " Backend onboarding ",
			"total_estimated_hours": "null",
			"subjects": [
				{
					"subject_name": "Go",
					"is_completed": true,
					"estimated_hours": "12",
					"topics": ["goroutines", {"topic_name": "channels", "is_completed": true}, ""],
					"official_docs": ["https://go.dev/doc", 7],
					"assessment": {
						"passing_score": 0.8,
						"quiz": [
							{"question": "What is a goroutine?", "options": ["thread", "coroutine"], "answer": "coroutine"},
							{"options": ["no text"]}
						]
					}
				},
				{"subject_name": "Empty", "topics": []},
				{"topics": ["orphan"]},
				"garbage",
				{"name": "go", "topics": ["modules"], "estimated_hours": -3}
			]
		}
	}`)

	d, err := Normalize(shape)
	require.NoError(t, err)

	assert.Equal(t, "Backend onboarding", d.Name)
	require.Len(t, d.Subjects, 2)

	g := d.Subjects[0]
	assert.Equal(t, "Go", g.Name)
	assert.False(t, g.Completed)
	assert.Equal(t, 12.0, g.EstimatedHours)
	assert.Equal(t, []Topic{{Name: "goroutines"}, {Name: "channels"}}, g.Topics)
	assert.Equal(t, []string{"https://go.dev/doc"}, g.OfficialDocs)
	assert.Equal(t, 80.0, g.Assessment.Threshold)
	require.Len(t, g.Assessment.Quiz, 1)
	assert.Equal(t, "coroutine", g.Assessment.Quiz[0].CorrectAnswer)

	dup := d.Subjects[1]
	assert.Equal(t, "go (2)", dup.Name)
	assert.Equal(t, DefaultEstimatedHours, dup.EstimatedHours)
	assert.Equal(t, DefaultThreshold, dup.Assessment.Threshold)

	assert.Equal(t, 12.0+DefaultEstimatedHours, d.TotalEstimatedHours)
}

func TestNormalize_Threshold(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want float64
	}{
		{"percent", 65.0, 65},
		{"fraction", 0.75, 75},
		{"string", "90%", 90},
		{"above range", 150.0, 100},
		{"negative", -5.0, 0},
		{"missing", nil, DefaultThreshold},
		{"garbage", "high", DefaultThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeThreshold(map[string]interface{}{"threshold": tt.raw})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_NonFiniteNumbersFallBackToDefaults(t *testing.T) {
	shape := shapeFromJSON(t, `{
		"total_estimated_hours": "NaN",
		"subjects": [
			{"subject_name": "Go", "estimated_hours": "Infinity", "topics": ["a"],
			 "assessment": {"threshold": "-Inf"}},
			{"subject_name": "SQL", "estimated_hours": "inf", "topics": ["joins"]}
		]
	}`)
	shape["subjects"].([]interface{})[1].(map[string]interface{})["estimated_hours"] = math.Inf(1)

	d, err := Normalize(shape)
	require.NoError(t, err)
	require.Len(t, d.Subjects, 2)
	assert.Equal(t, DefaultEstimatedHours, d.Subjects[0].EstimatedHours)
	assert.Equal(t, DefaultEstimatedHours, d.Subjects[1].EstimatedHours)
	assert.Equal(t, DefaultThreshold, d.Subjects[0].Assessment.Threshold)
	assert.Equal(t, 2*DefaultEstimatedHours, d.TotalEstimatedHours)

	p, err := NewLearningPath("p1", "emp-1", d, t0)
	require.NoError(t, err)
	_, err = json.Marshal(p)
	assert.NoError(t, err)
}

func TestNormalize_Malformed(t *testing.T) {
	for name, shape := range map[string]PathShape{
		"nil":            nil,
		"no subjects":    {"path_name": "x"},
		"all unusable":   {"subjects": []interface{}{map[string]interface{}{"subject_name": "A"}}},
		"subjects wrong": {"subjects": "HTML, CSS"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(shape)
			assert.ErrorIs(t, err, shared.ErrMalformedPath)
			assert.ErrorIs(t, err, shared.ErrGenerationFailed)
		})
	}
}

func TestFallbackDraft(t *testing.T) {
	d := FallbackDraft([]string{"Go", " go ", "", "Kafka Streams"})

	assert.True(t, d.Fallback)
	require.Len(t, d.Subjects, 2)
	assert.Equal(t, "Go", d.Subjects[0].Name)
	assert.Equal(t, []Topic{{Name: "Go"}}, d.Subjects[0].Topics)
	assert.Equal(t, []string{FallbackDocsBaseURL + "kafka_streams"}, d.Subjects[1].OfficialDocs)
	assert.Equal(t, DefaultThreshold, d.Subjects[1].Assessment.Threshold)
	assert.NotNil(t, d.Subjects[1].Assessment.Quiz)
	assert.Equal(t, 2*DefaultEstimatedHours, d.TotalEstimatedHours)

	p, err := NewLearningPath("p1", "emp-1", d, t0)
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.NoError(t, p.Validate())
}

func TestFallbackDraft_NoTopics(t *testing.T) {
	d := FallbackDraft(nil)
	require.Len(t, d.Subjects, 1)
	assert.Equal(t, "Getting Started", d.Subjects[0].Name)
}
