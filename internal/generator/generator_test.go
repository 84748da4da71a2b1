package generator

import (
	"context"
	"strings"
	"testing"

	"study-planner/internal/helper"
	"study-planner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingModel struct {
	prompts []string
	reply   string
}

func (m *recordingModel) Generate(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, nil
}

func TestWeeklyPlan_Prompt(t *testing.T) {
	m := &recordingModel{reply: "Mon: Algebra"}
	g := New(m, nil, 0)

	out, err := g.WeeklyPlan(context.Background(),
		[]string{"Unit 1:\nAlgebra", "Unit 2: Geometry"},
		[]string{"6–7 AM", "9–10 PM"},
		"  Mon-Fri lectures 9-5  ", 2)
	require.NoError(t, err)
	assert.Equal(t, "Mon: Algebra", out)

	require.Len(t, m.prompts, 1)
	p := m.prompts[0]
	assert.Contains(t, p, "- Unit 1: Algebra\n- Unit 2: Geometry")
	assert.Contains(t, p, "6–7 AM, 9–10 PM")
	assert.Contains(t, p, "Mon-Fri lectures 9-5")
	assert.Contains(t, p, "week 2")
}

func TestAnswer_PromptCarriesContextHistoryAndStyle(t *testing.T) {
	m := &recordingModel{reply: "A derivative is a rate of change."}
	g := New(m, nil, 0)

	chunks := []models.ScoredChunk{
		{Chunk: models.Chunk{Text: "Derivatives measure change", Position: 4}},
		{Chunk: models.Chunk{Text: "Limits come first", Position: 3}},
	}
	history := []HistoryLine{
		{Role: models.RoleStudent, Text: "What is a limit?"},
		{Role: models.RoleTutor, Text: "A value approached."},
	}
	_, err := g.Answer(context.Background(), chunks, history, "What is a derivative?")
	require.NoError(t, err)

	p := m.prompts[0]
	assert.Contains(t, p, "Derivatives measure change"+models.ContextSeparator+"Limits come first")
	assert.Contains(t, p, "student: What is a limit?\ntutor: A value approached.")
	assert.Contains(t, p, "Student question: What is a derivative?")
	assert.Contains(t, p, "simple language")
	assert.Less(t, strings.Index(p, "student: What is a limit?"), strings.Index(p, "Student question"))
}

func TestAnswer_NoHistory(t *testing.T) {
	m := &recordingModel{reply: "ok"}
	_, err := New(m, nil, 0).Answer(context.Background(), nil, nil, "q")
	require.NoError(t, err)
	assert.Contains(t, m.prompts[0], "(no earlier messages)")
}

func TestNotes_EmptyTopicCoversWholeSyllabus(t *testing.T) {
	m := &recordingModel{reply: "# Notes"}
	g := New(m, nil, 0)

	_, err := g.Notes(context.Background(), "  ", []models.Chunk{{Text: "Unit 1"}, {Text: "Unit 2"}})
	require.NoError(t, err)
	assert.Contains(t, m.prompts[0], "Topic: "+models.WholeSyllabusTopic)
	assert.Contains(t, m.prompts[0], "Unit 1"+models.ContextSeparator+"Unit 2")
}

func TestFitContext_TrimsToBudget(t *testing.T) {
	g := New(&recordingModel{}, helper.EstimateTokens, 10)

	long := strings.Repeat("abcd", 50)
	fitted := g.fitContext(long)
	assert.Equal(t, 40, len(fitted))
	assert.True(t, strings.HasPrefix(long, fitted))

	assert.Equal(t, "short", g.fitContext("short"))
}
