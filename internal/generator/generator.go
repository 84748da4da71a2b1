// Package generator turns retrieved syllabus context into plans, answers and notes.
package generator

import (
	"context"
	"fmt"
	"strings"

	"study-planner/internal/helper"
	"study-planner/internal/llmservice"
	"study-planner/internal/models"
)

type Generator struct {
	model            llmservice.Model
	countTokens      helper.TokenCounter
	maxContextTokens int
}

// New builds a Generator. maxContextTokens <= 0 disables context trimming.
func New(model llmservice.Model, counter helper.TokenCounter, maxContextTokens int) *Generator {
	if counter == nil {
		counter = helper.EstimateTokens
	}
	return &Generator{model: model, countTokens: counter, maxContextTokens: maxContextTokens}
}

// HistoryLine is one prior turn rendered into the prompt.
type HistoryLine struct {
	Role models.Role
	Text string
}

// WeeklyPlan asks the model for a seven day plan over topics.
func (g *Generator) WeeklyPlan(ctx context.Context, topics []string, freeSlots []string, timetable string, week int) (string, error) {
	prompt := fmt.Sprintf(models.PlanPromptTemplate,
		g.fitContext(bulletList(topics)),
		strings.Join(freeSlots, ", "),
		strings.TrimSpace(timetable),
		week,
	)
	return g.model.Generate(ctx, prompt)
}

// Answer responds to a student question using retrieved chunks and the prior conversation.
func (g *Generator) Answer(ctx context.Context, chunks []models.ScoredChunk, history []HistoryLine, question string) (string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	prompt := fmt.Sprintf(models.AnswerPromptTemplate,
		g.fitContext(strings.Join(texts, models.ContextSeparator)),
		renderHistory(history),
		strings.TrimSpace(question),
	)
	return g.model.Generate(ctx, prompt)
}

// Notes writes revision notes for topic. An empty topic covers the whole syllabus.
func (g *Generator) Notes(ctx context.Context, topic string, chunks []models.Chunk) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = models.WholeSyllabusTopic
	}
	prompt := fmt.Sprintf(models.NotesPromptTemplate,
		topic,
		g.fitContext(strings.Join(models.Texts(chunks), models.ContextSeparator)),
	)
	return g.model.Generate(ctx, prompt)
}

// fitContext cuts text down to the token budget, keeping the beginning.
func (g *Generator) fitContext(text string) string {
	if g.maxContextTokens <= 0 || g.countTokens(text) <= g.maxContextTokens {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if g.countTokens(string(runes[:mid])) <= g.maxContextTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(strings.Join(strings.Fields(it), " "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderHistory(history []HistoryLine) string {
	if len(history) == 0 {
		return "(no earlier messages)"
	}
	var b strings.Builder
	for _, h := range history {
		fmt.Fprintf(&b, "%s: %s\n", h.Role, strings.TrimSpace(h.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}
