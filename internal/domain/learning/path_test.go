package learning

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

func webDraft() Draft {
	return Draft{
		Name: "Frontend",
		Subjects: []Subject{
			{Name: "HTML", EstimatedHours: 4, Assessment: Assessment{Threshold: 70}, Topics: []Topic{{Name: "tags"}, {Name: "forms"}}},
			{Name: "CSS", EstimatedHours: 6, Assessment: Assessment{Threshold: 70}, Topics: []Topic{{Name: "selectors"}, {Name: "flexbox"}}},
			{Name: "JS", EstimatedHours: 10, Assessment: Assessment{Threshold: 80}, Topics: []Topic{{Name: "closures"}}},
		},
	}
}

func newWebPath(t *testing.T) *LearningPath {
	t.Helper()
	p, err := NewLearningPath("p1", "emp-1", webDraft(), t0)
	require.NoError(t, err)
	return p
}

func TestNewLearningPath(t *testing.T) {
	d := webDraft()
	d.Subjects[1].Started = true
	d.Subjects[1].Completed = true
	d.Subjects[1].Topics[0].Completed = true

	p, err := NewLearningPath("p1", "emp-1", d, t0)
	require.NoError(t, err)

	assert.Equal(t, 0, p.CurrentSubject())
	for _, s := range p.Subjects[1:] {
		assert.False(t, s.Started)
		assert.False(t, s.Completed)
	}
	assert.False(t, p.Subjects[1].Topics[0].Completed)
	assert.Equal(t, 5, p.TotalTopics)
	assert.Equal(t, 0, p.CompletedTopics)
	assert.Equal(t, 20.0, p.TotalEstimatedHours)
	assert.NoError(t, p.Validate())
}

func TestNewLearningPath_Invalid(t *testing.T) {
	_, err := NewLearningPath("p1", "emp-1", Draft{}, t0)
	assert.ErrorIs(t, err, shared.ErrEmptyPath)

	_, err = NewLearningPath("", "emp-1", webDraft(), t0)
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestNextIncompleteTopic(t *testing.T) {
	p := newWebPath(t)

	ref, ok := p.NextIncompleteTopic()
	require.True(t, ok)
	assert.Equal(t, TopicRef{Subject: "HTML", Topic: "tags"}, ref)

	p.Subjects[0].Topics[0].Completed = true
	p.Subjects[0].Topics[1].Completed = true
	ref, ok = p.NextIncompleteTopic()
	require.True(t, ok)
	assert.Equal(t, TopicRef{Subject: "CSS", Topic: "selectors", SubjectIndex: 1}, ref)

	for si := range p.Subjects {
		for ti := range p.Subjects[si].Topics {
			p.Subjects[si].Topics[ti].Completed = true
		}
	}
	_, ok = p.NextIncompleteTopic()
	assert.False(t, ok)
}

func TestSubmitAssessment_Failed(t *testing.T) {
	p := newWebPath(t)

	out, err := p.SubmitAssessment("HTML", 40, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, AssessmentFailed, out.Status)
	assert.False(t, out.Passed())
	assert.Equal(t, 70.0, out.Threshold)
	assert.Equal(t, "HTML", out.NextSubject)

	html := p.Subjects[0]
	assert.False(t, html.Completed)
	require.NotNil(t, html.Assessment.Score)
	assert.Equal(t, 40.0, *html.Assessment.Score)
	for _, topic := range html.Topics {
		assert.False(t, topic.Completed)
	}
	assert.Equal(t, 0, p.CompletedTopics)
}

func TestSubmitAssessment_PassedAdvances(t *testing.T) {
	p := newWebPath(t)

	out, err := p.SubmitAssessment("html", 70, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, out.Passed())
	assert.Equal(t, "CSS", out.NextSubject)

	assert.True(t, p.Subjects[0].Completed)
	assert.True(t, p.Subjects[1].IsCurrent())
	assert.False(t, p.Subjects[2].Started)
	assert.Equal(t, 2, p.CompletedTopics)
	assert.Equal(t, t0.Add(time.Hour), p.UpdatedAt)
	assert.NoError(t, p.Validate())
}

func TestSubmitAssessment_OutOfOrderKeepsSingleCurrent(t *testing.T) {
	p := newWebPath(t)

	// Сдача последнего предмета не начинает новый, пока HTML текущий.
	out, err := p.SubmitAssessment("JS", 95, t0)
	require.NoError(t, err)
	assert.Equal(t, "HTML", out.NextSubject)
	assert.Equal(t, 0, p.CurrentSubject())
	assert.NoError(t, p.Validate())

	_, err = p.SubmitAssessment("HTML", 100, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CurrentSubject())

	out, err = p.SubmitAssessment("CSS", 100, t0)
	require.NoError(t, err)
	assert.Empty(t, out.NextSubject)
	assert.True(t, p.AllCompleted())
	assert.Equal(t, 100.0, p.ProgressPercent())
}

func TestSubmitAssessment_Invalid(t *testing.T) {
	p := newWebPath(t)

	_, err := p.SubmitAssessment("HTML", 101, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidScore)

	_, err = p.SubmitAssessment("HTML", -1, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidScore)

	_, err = p.SubmitAssessment("HTML", math.NaN(), t0)
	assert.ErrorIs(t, err, shared.ErrInvalidScore)
	assert.Nil(t, p.Subjects[0].Assessment.Score)

	_, err = p.SubmitAssessment("Rust", 90, t0)
	assert.True(t, shared.IsNotFound(err))
}

func TestApplyPatch(t *testing.T) {
	p := newWebPath(t)
	name := "Frontend basics"

	err := p.ApplyPatch(Patch{
		Name:   &name,
		Topics: []TopicUpdate{{Topic: "forms", Completed: true}},
	}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Frontend basics", p.Name)
	assert.True(t, p.Subjects[0].Topics[1].Completed)
	assert.Equal(t, 1, p.CompletedTopics)
}

func TestApplyPatch_CompletingSubjectStartsNext(t *testing.T) {
	p := newWebPath(t)
	yes := true

	require.NoError(t, p.ApplyPatch(Patch{Subjects: []SubjectUpdate{{Name: "HTML", Completed: &yes}}}, t0))
	assert.True(t, p.Subjects[0].Completed)
	assert.Equal(t, 1, p.CurrentSubject())
	assert.Equal(t, 2, p.CompletedTopics)
}

func TestApplyPatch_RejectsSecondCurrentAtomically(t *testing.T) {
	p := newWebPath(t)
	yes := true

	err := p.ApplyPatch(Patch{
		Topics:   []TopicUpdate{{Subject: "HTML", Topic: "tags", Completed: true}},
		Subjects: []SubjectUpdate{{Name: "CSS", Started: &yes}},
	}, t0.Add(time.Hour))
	assert.ErrorIs(t, err, shared.ErrMultipleCurrent)

	assert.False(t, p.Subjects[0].Topics[0].Completed)
	assert.False(t, p.Subjects[1].Started)
	assert.Equal(t, t0, p.UpdatedAt)
}

func TestApplyPatch_UnknownTopic(t *testing.T) {
	p := newWebPath(t)

	err := p.ApplyPatch(Patch{Topics: []TopicUpdate{{Subject: "HTML", Topic: "canvas", Completed: true}}}, t0)
	assert.ErrorIs(t, err, shared.ErrTopicNotFound)

	err = p.ApplyPatch(Patch{Topics: []TopicUpdate{{Topic: "canvas", Completed: true}}}, t0)
	assert.ErrorIs(t, err, shared.ErrTopicNotFound)
}

func TestClone_IsDeep(t *testing.T) {
	p := newWebPath(t)
	score := 50.0
	p.Subjects[0].Assessment.Score = &score

	c := p.Clone()
	c.Subjects[0].Topics[0].Completed = true
	*c.Subjects[0].Assessment.Score = 99

	assert.False(t, p.Subjects[0].Topics[0].Completed)
	assert.Equal(t, 50.0, *p.Subjects[0].Assessment.Score)
}

func TestValidate(t *testing.T) {
	p := newWebPath(t)
	p.Subjects[1].Completed = true
	assert.ErrorIs(t, p.Validate(), shared.ErrCompletedNotStarted)

	p = newWebPath(t)
	p.Subjects[2].Started = true
	assert.ErrorIs(t, p.Validate(), shared.ErrMultipleCurrent)
}
