package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"study-planner/internal/chromemdb"
	"study-planner/internal/chunker"
	"study-planner/internal/config"
	"study-planner/internal/db"
	"study-planner/internal/embedding"
	"study-planner/internal/generator"
	"study-planner/internal/models"
	"study-planner/internal/rag"
	"study-planner/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syllabus = `Unit 1: Algebra. Linear equations and quadratic equations.
Unit 2: Geometry. Triangles, circles and coordinate geometry.
Unit 3: Calculus. Limits, derivatives and integrals.`

type stubModel struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (m *stubModel) Generate(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reply, m.err
}

func (m *stubModel) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func newTestApp(t *testing.T) (*fiber.App, *stubModel) {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.RAG.ChunkSize = 80
	cfg.RAG.ChunkOverlap = 10

	vectors, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	store, err := db.OpenStore(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb := embedding.NewFakeEmbedder(32)
	model := &stubModel{reply: "## Monday\n- Algebra"}
	splitter := chunker.NewWindow(chunker.WithChunkSize(cfg.RAG.ChunkSize), chunker.WithOverlap(cfg.RAG.ChunkOverlap))
	svc := workflow.NewService(
		rag.NewIndexer(splitter, emb, vectors, 32),
		rag.NewRetriever(emb, vectors, cfg.RAG.TopK),
		store,
		generator.New(model, nil, cfg.RAG.MaxContextTokens),
		cfg.RAG,
		cfg.Planner,
	)
	return NewApp(NewHandler(svc, store), cfg.Server), model
}

func doJSON(t *testing.T, app *fiber.App, method, path, session string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if session != "" {
		req.Header.Set(HeaderSessionID, session)
	}
	return send(t, app, req)
}

func send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestHealthy(t *testing.T) {
	app, _ := newTestApp(t)
	resp, body := doJSON(t, app, http.MethodGet, "/check/healthy", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["result"])
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestGeneratePlan_ApproveAndFetch(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/generate-plan", "alice", map[string]any{
		"syllabus_text": syllabus,
		"timetable":     "Mon-Fri 9-5 college",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "## Monday\n- Algebra", body["plan"])
	assert.EqualValues(t, 1, body["week"])
	assert.EqualValues(t, 100, body["progress"])
	planID := int64(body["plan_id"].(float64))
	require.NotZero(t, planID)

	resp, body = doJSON(t, app, http.MethodPost, "/approve", "alice", map[string]any{"plan_id": planID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", body["status"])

	resp, body = doJSON(t, app, http.MethodGet, fmt.Sprintf("/plans/%d", planID), "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plan := body["plan"].(map[string]any)
	assert.Equal(t, true, plan["approved"])
	assert.Len(t, body["progress"], 1)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/plans/%d?format=html", planID), nil)
	resp, _ = send(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/html")

	req = httptest.NewRequest(http.MethodGet, "/plans", nil)
	req.Header.Set(HeaderSessionID, "bob")
	resp, _ = send(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGeneratePlan_FormEncoded(t *testing.T) {
	app, _ := newTestApp(t)

	form := url.Values{}
	form.Set("syllabus_text", syllabus)
	form.Set("timetable", "Evenings free")
	form.Set("week", "3")
	req := httptest.NewRequest(http.MethodPost, "/generate-plan", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	resp, body := send(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["week"])
}

func TestGeneratePlan_Rejections(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/generate-plan", "", map[string]any{"syllabus_text": syllabus})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/generate-plan", "", map[string]any{
		"syllabus_text": syllabus, "timetable": "Mon", "progress": 140,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["errors"], "Progress")
}

func TestApprove_Errors(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/approve", "", map[string]any{"plan_id": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/approve", "", map[string]any{"plan_id": 999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/plans/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskDoubt_Conversation(t *testing.T) {
	app, model := newTestApp(t)
	model.reply = "A derivative measures change."

	resp, _ := doJSON(t, app, http.MethodPost, "/ingest", "alice", map[string]any{"syllabus_text": syllabus})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/ask-doubt", "alice", map[string]any{
		"question": "Could you please explain derivatives?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "A derivative measures change.", body["answer"])
	assert.Equal(t, "Explain derivatives", body["title"])
	convID := int64(body["conversation_id"].(float64))

	resp, body = doJSON(t, app, http.MethodPost, "/ask-doubt", "alice", map[string]any{
		"question": "And integrals?", "conversation_id": convID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Explain derivatives", body["title"])

	resp, body = doJSON(t, app, http.MethodGet, fmt.Sprintf("/conversations/%d", convID), "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	turns := body["turns"].([]any)
	require.Len(t, turns, 4)
	assert.Equal(t, "student", turns[0].(map[string]any)["role"])
	assert.Equal(t, "tutor", turns[1].(map[string]any)["role"])

	resp, _ = doJSON(t, app, http.MethodPost, "/ask-doubt", "alice", map[string]any{
		"question": "Hi", "conversation_id": 999,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAskDoubt_SessionsAreIsolated(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/ingest", "alice", map[string]any{"syllabus_text": syllabus})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/ask-doubt", "bob", map[string]any{"question": "What is algebra?"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/ask-doubt", "not valid!", map[string]any{"question": "What is algebra?"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpstreamFailures(t *testing.T) {
	app, model := newTestApp(t)
	resp, _ := doJSON(t, app, http.MethodPost, "/ingest", "", map[string]any{"syllabus_text": syllabus})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	model.fail(&models.UpstreamError{Op: "llm generate", Retryable: true, Err: errors.New("rate limited")})
	resp, body := doJSON(t, app, http.MethodPost, "/ask-doubt", "", map[string]any{"question": "What is geometry?"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get(fiber.HeaderRetryAfter))
	assert.Equal(t, true, body["retryable"])

	model.fail(&models.UpstreamError{Op: "llm generate", Err: errors.New("bad key")})
	resp, body = doJSON(t, app, http.MethodPost, "/generate-notes", "", map[string]any{"topic": "Geometry"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Nil(t, body["retryable"])
}

func TestNotes(t *testing.T) {
	app, model := newTestApp(t)
	model.reply = "# Notes\n\nAlgebra is about equations."

	resp, _ := doJSON(t, app, http.MethodPost, "/ingest", "", map[string]any{"syllabus_text": syllabus})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/generate-notes", nil)
	resp, body := send(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", body["topic"])
	assert.NotZero(t, body["note_id"])

	req = httptest.NewRequest(http.MethodGet, "/notes?format=html", nil)
	resp, _ = send(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/html")
}

func TestUpload(t *testing.T) {
	app, _ := newTestApp(t)

	upload := func(name, content string) *http.Request {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
		req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
		return req
	}

	resp, body := send(t, app, upload("syllabus.txt", syllabus))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, syllabus, body["syllabus_text"])

	resp, _ = send(t, app, upload("empty.txt", "   "))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/upload", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewChatAndMotivation(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/new-chat", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotZero(t, body["conversation_id"])

	resp, body = doJSON(t, app, http.MethodGet, "/motivation", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, models.MotivationPool, body["message"])
}
