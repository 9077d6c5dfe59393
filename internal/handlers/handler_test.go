package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ad/go-python-coach/internal/curriculum"
	"github.com/ad/go-python-coach/internal/db"
	"github.com/ad/go-python-coach/internal/llm"
	"github.com/ad/go-python-coach/internal/models"
	"github.com/ad/go-python-coach/internal/services"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	openai "github.com/sashabaranov/go-openai"
	_ "modernc.org/sqlite"
	"pgregory.net/rapid"
)

const testAdminID int64 = 1000

type stubGenerator struct{}

func (stubGenerator) GenerateAnswer(_ context.Context, text string) string {
	return "mentor: " + text
}

type recordingReplier struct {
	mu      sync.Mutex
	replies map[int64][]string
}

func (r *recordingReplier) SendText(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replies == nil {
		r.replies = make(map[int64][]string)
	}
	r.replies[chatID] = append(r.replies[chatID], text)
	return nil
}

func (r *recordingReplier) last(chatID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	replies := r.replies[chatID]
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1]
}

type panicReplier struct{}

func (panicReplier) SendText(context.Context, int64, string) error {
	panic("replier exploded")
}

type adminSender struct {
	mu   sync.Mutex
	sent int
}

func (a *adminSender) SendMessage(_ context.Context, _ *bot.SendMessageParams) (*tgmodels.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent++
	return &tgmodels.Message{}, nil
}

type testEnv struct {
	handler *BotHandler
	repo    *db.ProgressRepository
	lessons *db.LessonRepository
	sqlDB   *sql.DB
}

// newTestEnv wires a handler over an in-memory database. deepseek serves the
// chat completion endpoint used for lessons.
func newTestEnv(t *testing.T, replier Replier, deepseek http.HandlerFunc) *testEnv {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InitSchema(sqlDB); err != nil {
		t.Fatal(err)
	}
	queue := db.NewDBQueueForTest(sqlDB)
	server := httptest.NewServer(deepseek)
	t.Cleanup(func() {
		server.Close()
		queue.Close()
		sqlDB.Close()
	})

	c := curriculum.Default()
	repo := db.NewProgressRepository(queue, c.Len())
	engine := services.NewProgressEngine(c, services.NewKeywordClassifier(c), stubGenerator{})
	coach := services.NewCoach(engine, repo, nil)

	client := llm.NewClient(llm.Config{
		APIKey:    "test-key",
		BaseURL:   server.URL + "/v1",
		Timeout:   2 * time.Second,
		RetryWait: time.Millisecond,
	})
	lessonRepo := db.NewLessonRepository(queue)
	lessons := services.NewLessonService(coach, c, lessonRepo, llm.NewLessonWriter(client, c.Len(), nil), nil)

	return &testEnv{
		handler: NewBotHandler(testAdminID, coach, lessons, c, replier, nil, nil),
		repo:    repo,
		lessons: lessonRepo,
		sqlDB:   sqlDB,
	}
}

func setupHandler(t *testing.T, replier Replier) (*BotHandler, *db.ProgressRepository) {
	t.Helper()
	env := newTestEnv(t, replier, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unexpected call", http.StatusInternalServerError)
	})
	return env.handler, env.repo
}

// fakeDeepSeek answers every chat completion with content and records the
// prompts it was sent.
type fakeDeepSeek struct {
	content string
	mu      sync.Mutex
	calls   int
	request string
}

func (f *fakeDeepSeek) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.calls++
	if len(req.Messages) == 2 {
		f.request = req.Messages[0].Content + "\n" + req.Messages[1].Content
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:    "chatcmpl-lesson",
		Model: llm.DefaultModel,
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}},
		},
	})
}

func (f *fakeDeepSeek) stats() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.request
}

func textUpdate(userID int64, text string) *tgmodels.Update {
	return &tgmodels.Update{Message: &tgmodels.Message{
		Text: text,
		From: &tgmodels.User{ID: userID, FirstName: "Learner"},
		Chat: tgmodels.Chat{ID: userID},
	}}
}

func TestHandleUpdate_QuizThenLink(t *testing.T) {
	replier := &recordingReplier{}
	h, repo := setupHandler(t, replier)
	ctx := context.Background()

	h.HandleUpdate(ctx, nil, textUpdate(1, "نام_متغیر = مقدار"))
	if got := replier.last(1); got != services.MsgQuizPassed {
		t.Fatalf("Expected quiz passed reply, got %q", got)
	}

	h.HandleUpdate(ctx, nil, textUpdate(1, "https://github.com/learner/basics"))
	if got := replier.last(1); !strings.Contains(got, "مرحله 2") {
		t.Errorf("Expected stage 2 unlock reply, got %q", got)
	}

	record, err := repo.Load(ctx, 1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if record.Stage != 1 || len(record.SubmittedLinks) != 1 {
		t.Errorf("Expected stage 1 with one link, got %+v", record)
	}
}

func TestHandleUpdate_CommandsDoNotMutateProgress(t *testing.T) {
	replier := &recordingReplier{}
	h, repo := setupHandler(t, replier)
	ctx := context.Background()

	h.HandleUpdate(ctx, nil, textUpdate(2, "/start"))
	if got := replier.last(2); !strings.Contains(got, "خوش آمدید") || !strings.Contains(got, "متغیر") {
		t.Errorf("Expected welcome with first quiz, got %q", got)
	}

	h.HandleUpdate(ctx, nil, textUpdate(2, "/status"))
	if got := replier.last(2); !strings.Contains(got, "0/12") {
		t.Errorf("Expected status 0/12, got %q", got)
	}

	h.HandleUpdate(ctx, nil, textUpdate(2, "/quiz@PythonCoachBot"))
	if got := replier.last(2); !strings.Contains(got, "چگونه یک متغیر") {
		t.Errorf("Expected quiz question, got %q", got)
	}

	h.HandleUpdate(ctx, nil, textUpdate(2, "/unknown"))
	if got := replier.last(2); got != msgHelp {
		t.Errorf("Expected help, got %q", got)
	}

	ids, err := repo.UserIDs(ctx)
	if err != nil {
		t.Fatalf("UserIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Commands must not create records, got %v", ids)
	}
}

func TestHandleUpdate_OffTopicUsesGenerator(t *testing.T) {
	replier := &recordingReplier{}
	h, _ := setupHandler(t, replier)
	ctx := context.Background()

	h.HandleUpdate(ctx, nil, textUpdate(3, "سلام"))
	if got := replier.last(3); got != "mentor: سلام" {
		t.Errorf("Expected generated answer, got %q", got)
	}
	h.HandleUpdate(ctx, nil, textUpdate(3, "سلام"))
	h.HandleUpdate(ctx, nil, textUpdate(3, "سلام"))
	if got := replier.last(3); got != services.MsgFinalWarning {
		t.Errorf("Expected final warning, got %q", got)
	}
}

func TestHandleUpdate_AdminReset(t *testing.T) {
	replier := &recordingReplier{}
	h, repo := setupHandler(t, replier)
	ctx := context.Background()

	h.HandleUpdate(ctx, nil, textUpdate(4, "نام_متغیر = مقدار"))

	h.HandleUpdate(ctx, nil, textUpdate(4, "/reset 4"))
	if got := replier.last(4); got != msgHelp {
		t.Errorf("Non-admin reset must fall through to help, got %q", got)
	}
	if _, err := repo.Load(ctx, 4); err != nil {
		t.Fatalf("Record must survive non-admin reset: %v", err)
	}

	h.HandleUpdate(ctx, nil, textUpdate(testAdminID, "/users"))
	if got := replier.last(testAdminID); !strings.Contains(got, "4: 0/12 (link_pending)") {
		t.Errorf("Expected learner listing, got %q", got)
	}

	h.HandleUpdate(ctx, nil, textUpdate(testAdminID, "/reset abc"))
	if got := replier.last(testAdminID); got != msgResetUsage {
		t.Errorf("Expected usage, got %q", got)
	}

	h.HandleUpdate(ctx, nil, textUpdate(testAdminID, "/reset 4"))
	if got := replier.last(testAdminID); got != fmt.Sprintf(msgResetDone, 4) {
		t.Errorf("Expected reset confirmation, got %q", got)
	}
	if _, err := repo.Load(ctx, 4); !errors.Is(err, models.ErrProgressNotFound) {
		t.Errorf("Expected record to be deleted, got %v", err)
	}
}

func TestHandleUpdate_NonTextMessage(t *testing.T) {
	replier := &recordingReplier{}
	h, _ := setupHandler(t, replier)

	update := textUpdate(5, "")
	update.Message.Photo = []tgmodels.PhotoSize{{FileID: "x"}}
	h.HandleUpdate(context.Background(), nil, update)

	if got := replier.last(5); got != msgTextOnly {
		t.Errorf("Expected text-only notice, got %q", got)
	}
}

func TestHandleUpdate_IgnoresUpdatesWithoutSender(t *testing.T) {
	replier := &recordingReplier{}
	h, _ := setupHandler(t, replier)

	h.HandleUpdate(context.Background(), nil, &tgmodels.Update{Message: &tgmodels.Message{Text: "hi"}})
	h.HandleUpdate(context.Background(), nil, &tgmodels.Update{})

	if len(replier.replies) != 0 {
		t.Errorf("Expected no replies, got %v", replier.replies)
	}
}

func TestHandleUpdate_RecoversPanic(t *testing.T) {
	h, _ := setupHandler(t, panicReplier{})
	sender := &adminSender{}
	h.errorManager = services.NewErrorManager(sender, testAdminID, nil)

	h.HandleUpdate(context.Background(), nil, textUpdate(6, "/start"))

	if sender.sent != 1 {
		t.Errorf("Expected one admin notification, got %d", sender.sent)
	}
}

type sentMessages struct {
	mu    sync.Mutex
	texts []string
}

func (s *sentMessages) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, params.Text)
	return &tgmodels.Message{}, nil
}

func countRows(t *testing.T, sqlDB *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestHandleUpdate_LessonIsGeneratedOnceAndSplit(t *testing.T) {
	lesson := strings.Repeat("تئوری متغیرها و مثال کد پایتون.\n", 300)
	deepseek := &fakeDeepSeek{content: lesson}
	sender := &sentMessages{}
	replier := services.NewMessageManager(sender, nil, nil)
	env := newTestEnv(t, replier, deepseek.ServeHTTP)
	ctx := context.Background()

	env.handler.HandleUpdate(ctx, nil, textUpdate(11, "/lesson"))
	_, request := deepseek.stats()

	if len(sender.texts) < 2 {
		t.Fatalf("Expected long lesson to be split, got %d messages", len(sender.texts))
	}
	if !strings.HasPrefix(sender.texts[0], "📚 درس مرحله 1: پایه‌های پایتون") {
		t.Errorf("Expected lesson header, got %q", sender.texts[0])
	}
	if !strings.HasPrefix(request, llm.LessonPrompt) || !strings.Contains(request, "پایه‌های پایتون") {
		t.Errorf("Expected lesson prompt naming the stage, got %q", request)
	}

	env.handler.HandleUpdate(ctx, nil, textUpdate(12, "/lesson"))
	if got, _ := deepseek.stats(); got != 1 {
		t.Errorf("Expected cached lesson for the second learner, got %d API calls", got)
	}

	cached, err := env.lessons.Load(ctx, 0)
	if err != nil {
		t.Fatalf("Expected cached lesson: %v", err)
	}
	if cached != strings.TrimSpace(lesson) {
		t.Error("Expected raw lesson text in cache")
	}
	if n := countRows(t, env.sqlDB, "progress"); n != 0 {
		t.Errorf("Lessons must not create progress records, got %d", n)
	}
}

func TestHandleUpdate_LessonFollowsStage(t *testing.T) {
	deepseek := &fakeDeepSeek{content: "درس ساختار داده"}
	replier := &recordingReplier{}
	env := newTestEnv(t, replier, deepseek.ServeHTTP)
	ctx := context.Background()

	env.handler.HandleUpdate(ctx, nil, textUpdate(13, "نام_متغیر = مقدار"))
	env.handler.HandleUpdate(ctx, nil, textUpdate(13, "https://github.com/learner/basics"))
	before, err := env.repo.Load(ctx, 13)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	env.handler.HandleUpdate(ctx, nil, textUpdate(13, "/lesson"))
	if got := replier.last(13); !strings.Contains(got, "مرحله 2: ساختار داده‌ها") || !strings.Contains(got, "درس ساختار داده") {
		t.Errorf("Expected stage 2 lesson, got %q", got)
	}
	if _, request := deepseek.stats(); !strings.Contains(request, "ساختار داده‌ها") {
		t.Errorf("Expected stage name in request, got %q", request)
	}

	after, err := env.repo.Load(ctx, 13)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Stage != before.Stage {
		t.Errorf("Lesson must not touch progress: before %+v after %+v", before, after)
	}
}

func TestHandleUpdate_LessonFailureIsNotCached(t *testing.T) {
	var calls int32
	replier := &recordingReplier{}
	env := newTestEnv(t, replier, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	})
	ctx := context.Background()

	env.handler.HandleUpdate(ctx, nil, textUpdate(14, "/lesson"))

	if got := replier.last(14); got != "⚠️ بعد از ۳ بار تلاش، عملیات ناموفق بود" {
		t.Errorf("Expected rate limit text, got %q", got)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if _, err := env.lessons.Load(ctx, 0); !errors.Is(err, models.ErrLessonNotFound) {
		t.Errorf("Failed lesson must not be cached, got %v", err)
	}
}

func TestHandleUpdate_LessonAfterCurriculum(t *testing.T) {
	deepseek := &fakeDeepSeek{content: "unused"}
	replier := &recordingReplier{}
	env := newTestEnv(t, replier, deepseek.ServeHTTP)
	ctx := context.Background()

	done := models.NewProgressRecord(15)
	done.Stage = 12
	for i := 0; i < 12; i++ {
		done.SubmittedLinks = append(done.SubmittedLinks, "https://github.com/learner/repo")
	}
	if err := env.repo.Save(ctx, done); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	env.handler.HandleUpdate(ctx, nil, textUpdate(15, "/lesson"))
	if got := replier.last(15); got != services.MsgLessonsFinished {
		t.Errorf("Expected finished text, got %q", got)
	}
	if calls, _ := deepseek.stats(); calls != 0 {
		t.Error("No lesson should be requested after the curriculum")
	}
}

func TestProperty1_ParseCommand(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "name")
		suffix := rapid.StringMatching(`(@[A-Za-z]{1,10})?`).Draw(rt, "suffix")
		args := rapid.SliceOfN(rapid.StringMatching(`[0-9a-z]{1,8}`), 0, 3).Draw(rt, "args")

		text := "/" + name + suffix
		if len(args) > 0 {
			text += " " + strings.Join(args, " ")
		}

		command, gotArgs, ok := parseCommand(text)
		if !ok {
			rt.Fatalf("Expected %q to parse as a command", text)
		}
		if command != "/"+name {
			rt.Errorf("Expected command /%s, got %s", name, command)
		}
		if len(gotArgs) != len(args) {
			rt.Errorf("Expected %d args, got %d", len(args), len(gotArgs))
		}
	})

	if _, _, ok := parseCommand("hello /start"); ok {
		t.Error("Text not starting with / must not be a command")
	}
}
