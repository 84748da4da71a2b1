// Package workflow runs the three study pipelines: weekly plan, ask doubt and generate notes.
package workflow

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"study-planner/internal/config"
	"study-planner/internal/db"
	"study-planner/internal/generator"
	"study-planner/internal/models"
	"study-planner/internal/rag"

	"github.com/rs/zerolog/log"
)

// Session names the syllabus index and conversation a call works against.
type Session struct {
	SourceID       string
	ConversationID int64
}

type Service struct {
	indexer   *rag.Indexer
	retriever *rag.Retriever
	store     *db.Store
	gen       *generator.Generator
	rag       config.RAGConfig
	planner   config.PlannerConfig
}

func NewService(indexer *rag.Indexer, retriever *rag.Retriever, store *db.Store, gen *generator.Generator, ragCfg config.RAGConfig, plannerCfg config.PlannerConfig) *Service {
	return &Service{
		indexer:   indexer,
		retriever: retriever,
		store:     store,
		gen:       gen,
		rag:       ragCfg,
		planner:   plannerCfg,
	}
}

type stage struct {
	name string
	run  func(ctx context.Context) error
}

// runStages executes stages in order, once each, stopping at the first failure.
func runStages(ctx context.Context, pipeline, source string, stages ...stage) error {
	for _, st := range stages {
		start := time.Now()
		if err := st.run(ctx); err != nil {
			log.Warn().Err(err).Str("pipeline", pipeline).Str("stage", st.name).Str("source", source).
				Dur("took", time.Since(start)).Msg("stage failed")
			return err
		}
		log.Debug().Str("pipeline", pipeline).Str("stage", st.name).Str("source", source).
			Dur("took", time.Since(start)).Msg("stage done")
	}
	return nil
}

type PlanRequest struct {
	Syllabus  string
	Timetable string
	Week      int
	// Progress is the completion percentage to record, 0 means the configured default.
	Progress int
}

type PlanResult struct {
	PlanID    int64    `json:"plan_id"`
	Week      int      `json:"week"`
	Plan      string   `json:"plan"`
	FreeSlots []string `json:"free_slots"`
	Progress  int      `json:"progress"`
	Topics    []string `json:"topics"`
}

// WeeklyPlan indexes the syllabus, plans the week and stores the plan with its progress.
// Nothing is stored unless generation succeeds.
func (s *Service) WeeklyPlan(ctx context.Context, sess Session, req PlanRequest) (*PlanResult, error) {
	if strings.TrimSpace(req.Syllabus) == "" {
		return nil, models.InputError("syllabus_text")
	}
	if strings.TrimSpace(req.Timetable) == "" {
		return nil, models.InputError("timetable")
	}
	if req.Week <= 0 {
		req.Week = 1
	}
	if req.Progress < 0 || req.Progress > 100 {
		return nil, models.InputError("progress between 0 and 100")
	}

	res := &PlanResult{Week: req.Week}
	var chunks []models.Chunk

	err := runStages(ctx, "weekly_plan", sess.SourceID,
		stage{"ingest", func(ctx context.Context) error {
			var err error
			chunks, err = s.indexer.Ingest(ctx, sess.SourceID, req.Syllabus)
			return err
		}},
		stage{"derive_free_slots", func(context.Context) error {
			res.FreeSlots = append([]string(nil), s.planner.FreeSlots...)
			return nil
		}},
		stage{"generate_plan", func(ctx context.Context) error {
			res.Topics = topics(chunks, s.rag.PlanTopics)
			var err error
			res.Plan, err = s.gen.WeeklyPlan(ctx, res.Topics, res.FreeSlots, req.Timetable, req.Week)
			return err
		}},
		stage{"record_progress", func(context.Context) error {
			res.Progress = req.Progress
			if res.Progress == 0 {
				res.Progress = s.planner.DefaultProgress
			}
			return nil
		}},
		stage{"persist_plan", func(ctx context.Context) error {
			plan := &db.Plan{SourceID: sess.SourceID, Week: res.Week, Text: res.Plan}
			if err := s.store.SavePlan(ctx, plan, &db.Progress{Completed: res.Progress}); err != nil {
				return err
			}
			res.PlanID = plan.ID
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func topics(chunks []models.Chunk, n int) []string {
	if n <= 0 || n > len(chunks) {
		n = len(chunks)
	}
	return models.Texts(chunks[:n])
}

type DoubtResult struct {
	Answer         string `json:"answer"`
	ConversationID int64  `json:"conversation_id"`
	Title          string `json:"title"`
}

// AskDoubt answers a question from the session's syllabus index and records the exchange.
// A zero ConversationID starts a new conversation, created only once the exchange is stored.
func (s *Service) AskDoubt(ctx context.Context, sess Session, question string) (*DoubtResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.InputError("question")
	}

	convID := sess.ConversationID
	if convID != 0 {
		if _, err := s.store.GetConversation(ctx, convID); err != nil {
			return nil, err
		}
	}

	res := &DoubtResult{ConversationID: convID}
	var (
		hits    []models.ScoredChunk
		history []generator.HistoryLine
	)
	err := runStages(ctx, "ask_doubt", sess.SourceID,
		stage{"retrieve_context", func(ctx context.Context) error {
			var err error
			hits, err = s.retriever.Retrieve(ctx, sess.SourceID, question, s.rag.TopK)
			if err != nil {
				return err
			}
			if convID == 0 {
				return nil
			}
			turns, err := s.store.GetHistory(ctx, convID)
			if err != nil {
				return err
			}
			for _, t := range turns {
				history = append(history, generator.HistoryLine{Role: t.Role, Text: t.Text})
			}
			return nil
		}},
		stage{"generate_answer", func(ctx context.Context) error {
			var err error
			res.Answer, err = s.gen.Answer(ctx, hits, history, question)
			return err
		}},
		stage{"persist_turns", func(ctx context.Context) error {
			conv, err := s.store.AppendExchange(ctx, convID, question, res.Answer)
			if err != nil {
				return err
			}
			res.ConversationID, res.Title = conv.ID, conv.Title
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

type NotesResult struct {
	NoteID int64  `json:"note_id"`
	Topic  string `json:"topic"`
	Notes  string `json:"notes"`
}

// GenerateNotes writes notes for topic, or for the whole syllabus when topic is empty.
func (s *Service) GenerateNotes(ctx context.Context, sess Session, topic string) (*NotesResult, error) {
	topic = strings.TrimSpace(topic)
	res := &NotesResult{Topic: topic}
	var chunks []models.Chunk

	err := runStages(ctx, "generate_notes", sess.SourceID,
		stage{"select_context", func(ctx context.Context) error {
			if topic == "" {
				var err error
				chunks, err = s.retriever.Dump(ctx, sess.SourceID)
				return err
			}
			hits, err := s.retriever.Retrieve(ctx, sess.SourceID, topic, s.rag.TopK)
			if err != nil {
				return err
			}
			for _, h := range hits {
				chunks = append(chunks, h.Chunk)
			}
			return nil
		}},
		stage{"generate_notes", func(ctx context.Context) error {
			var err error
			res.Notes, err = s.gen.Notes(ctx, topic, chunks)
			return err
		}},
		stage{"persist_notes", func(ctx context.Context) error {
			note := &db.Note{SourceID: sess.SourceID, Topic: topic, Text: res.Notes}
			if err := s.store.SaveNotes(ctx, note); err != nil {
				return err
			}
			res.NoteID = note.ID
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Ingest indexes a syllabus without planning.
func (s *Service) Ingest(ctx context.Context, sess Session, syllabus string) (int, error) {
	chunks, err := s.indexer.Ingest(ctx, sess.SourceID, syllabus)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *Service) ApprovePlan(ctx context.Context, planID int64) error {
	if planID <= 0 {
		return models.InputError("plan_id")
	}
	if err := s.store.ApprovePlan(ctx, planID); err != nil {
		return err
	}
	log.Info().Int64("plan_id", planID).Msg("plan approved")
	return nil
}

func (s *Service) NewConversation(ctx context.Context) (int64, error) {
	return s.store.CreateConversation(ctx)
}

// Motivation picks a random line from the fixed pool.
func (s *Service) Motivation() string {
	return models.MotivationPool[rand.IntN(len(models.MotivationPool))]
}
