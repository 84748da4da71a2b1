package server

import (
	"io"
	"unicode/utf8"

	"study-planner/internal/db"
	"study-planner/internal/parser"
	"study-planner/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	svc   *workflow.Service
	store *db.Store
}

func NewHandler(svc *workflow.Service, store *db.Store) *Handler {
	return &Handler{svc: svc, store: store}
}

func session(c *fiber.Ctx) workflow.Session {
	return workflow.Session{SourceID: sourceID(c)}
}

// HandleUpload extracts the text of an uploaded syllabus. Nothing is stored.
func (h *Handler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewError(fiber.StatusBadRequest, "multipart field 'file' is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	ext := parser.ExtractText(fileHeader.Filename, data)
	if err := ext.Err(); err != nil {
		log.Info().Str("file", fileHeader.Filename).Str("reason", ext.Reason).Msg("upload yielded no text")
		return err
	}
	return c.JSON(fiber.Map{
		"syllabus_text": ext.Text,
		"pages":         ext.Pages,
		"characters":    utf8.RuneCountInString(ext.Text),
	})
}

func (h *Handler) HandleIngest(c *fiber.Ctx) error {
	var params IngestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	n, err := h.svc.Ingest(c.UserContext(), session(c), params.SyllabusText)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"source_id": sourceID(c), "chunks": n})
}

func (h *Handler) HandleGeneratePlan(c *fiber.Ctx) error {
	var params PlanParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := validateParams(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}

	res, err := h.svc.WeeklyPlan(c.UserContext(), session(c), workflow.PlanRequest{
		Syllabus:  params.SyllabusText,
		Timetable: params.Timetable,
		Week:      params.Week,
		Progress:  params.Progress,
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *Handler) HandleApprove(c *fiber.Ctx) error {
	var params ApproveParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := validateParams(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}
	if err := h.svc.ApprovePlan(c.UserContext(), params.PlanID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "approved", "plan_id": params.PlanID})
}

func (h *Handler) HandleGetPlan(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return ErrInvalidID("plan id")
	}
	plan, err := h.store.GetPlan(c.UserContext(), int64(id))
	if err != nil {
		return err
	}
	if wantsHTML(c) {
		return sendHTML(c, plan.Text)
	}
	progress, err := h.store.GetProgress(c.UserContext(), plan.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"plan": plan, "progress": progress})
}

func (h *Handler) HandleListPlans(c *fiber.Ctx) error {
	plans, err := h.store.ListPlans(c.UserContext(), sourceID(c))
	if err != nil {
		return err
	}
	return c.JSON(plans)
}

func (h *Handler) HandleAskDoubt(c *fiber.Ctx) error {
	var params DoubtParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := validateParams(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}

	sess := session(c)
	sess.ConversationID = params.ConversationID
	res, err := h.svc.AskDoubt(c.UserContext(), sess, params.Question)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *Handler) HandleGenerateNotes(c *fiber.Ctx) error {
	var params NotesParams
	// an empty body asks for notes on the whole syllabus
	if len(c.Body()) > 0 && c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := validateParams(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}

	res, err := h.svc.GenerateNotes(c.UserContext(), session(c), params.Topic)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *Handler) HandleListNotes(c *fiber.Ctx) error {
	notes, err := h.store.ListNotes(c.UserContext(), sourceID(c), c.Query("topic"))
	if err != nil {
		return err
	}
	if wantsHTML(c) && len(notes) > 0 {
		return sendHTML(c, notes[0].Text)
	}
	return c.JSON(notes)
}

func (h *Handler) HandleNewChat(c *fiber.Ctx) error {
	id, err := h.svc.NewConversation(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"conversation_id": id})
}

func (h *Handler) HandleListConversations(c *fiber.Ctx) error {
	convs, err := h.store.ListConversations(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(convs)
}

func (h *Handler) HandleGetConversation(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return ErrInvalidID("conversation id")
	}
	conv, err := h.store.GetConversation(c.UserContext(), int64(id))
	if err != nil {
		return err
	}
	turns, err := h.store.GetHistory(c.UserContext(), conv.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"conversation": conv, "turns": turns})
}

func (h *Handler) HandleMotivation(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": h.svc.Motivation()})
}

func wantsHTML(c *fiber.Ctx) bool {
	return c.Query("format") == "html"
}

func sendHTML(c *fiber.Ctx, markdown string) error {
	out, err := parser.RenderMarkdown(markdown)
	if err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.SendString(out)
}
