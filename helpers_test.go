package main

import (
	"database/sql"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	_ "github.com/mattn/go-sqlite3"
)

// fakeSender records every delivery attempt and can be told to fail sends to
// specific chats.
type fakeSender struct {
	attempts []tgbotapi.Chattable
	answers  []tgbotapi.CallbackConfig
	failFor  map[int64]error
	nextID   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.attempts = append(f.attempts, c)
	if chatID, ok := chatIDOf(c); ok {
		if err, found := f.failFor[chatID]; found {
			return tgbotapi.Message{}, err
		}
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) AnswerCallbackQuery(config tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error) {
	f.answers = append(f.answers, config)
	return tgbotapi.APIResponse{Ok: true}, nil
}

func chatIDOf(c tgbotapi.Chattable) (int64, bool) {
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		return v.ChatID, true
	case tgbotapi.EditMessageTextConfig:
		return v.ChatID, true
	case tgbotapi.EditMessageReplyMarkupConfig:
		return v.ChatID, true
	case tgbotapi.DeleteMessageConfig:
		return v.ChatID, true
	}
	return 0, false
}

// textsTo returns the plain message texts sent to a chat, in order.
func (f *fakeSender) textsTo(chatID int64) []string {
	var texts []string
	for _, c := range f.attempts {
		if mc, ok := c.(tgbotapi.MessageConfig); ok && mc.ChatID == chatID {
			texts = append(texts, mc.Text)
		}
	}
	return texts
}

// lastMessageTo returns the last message sent to a chat.
func (f *fakeSender) lastMessageTo(t *testing.T, chatID int64) tgbotapi.MessageConfig {
	t.Helper()
	var last *tgbotapi.MessageConfig
	for _, c := range f.attempts {
		if mc, ok := c.(tgbotapi.MessageConfig); ok && mc.ChatID == chatID {
			m := mc
			last = &m
		}
	}
	if last == nil {
		t.Fatalf("no messages sent to chat %d", chatID)
	}
	return *last
}

func testConfig() *Config {
	return &Config{
		BotUsername: "testbot",
		AdminIDs:    []string{"900"},
		ChannelID:   -1000,
		EventTypes:  []string{"run", "bike", "board_games"},
		StaticEvents: []string{
			"board_games",
		},
		Buttons: ButtonLabels{
			Join:         "join",
			Unjoin:       "unjoin",
			Edit:         "edit",
			Delete:       "delete",
			Publish:      "publish",
			Info:         "info",
			Create:       "create",
			More:         "more",
			EditTime:     "edit time",
			EditPlace:    "edit place",
			EditInfo:     "edit info",
			FindToday:    "today",
			FindTomorrow: "tomorrow",
			FindWeek:     "week",
			FindAll:      "all",
			FindDate:     "on date",
		},
		Messages: Messages{
			Start:               "welcome",
			ChooseDate:          "choose date",
			ChooseTime:          "choose time",
			ChooseType:          "choose type",
			ChooseLocation:      "choose location",
			ChooseDistance:      "choose distance",
			ChoosePace:          "choose pace",
			EnterAdditionalInfo: "enter info",
			EventCreated:        "event created",
			InvalidInput:        "invalid input",
			UnknownCommand:      "unknown command",
			AccessDenied:        "access denied",
			ChooseCategory:      "choose category",
			IAmAuthor:           "author",
			IAmParticipant:      "participant",
			ShowEvents:          "show events",
			NoEvents:            "no events",
			NoEventsToday:       "none today",
			NoEventsTomorrow:    "none tomorrow",
			NoEventsThisWeek:    "none this week",
			NoUpcomingEvents:    "none on date",
			EventDeleted:        "deleted",
			EventPublished:      "published",
			EventJoined:         "joined",
			EventUnjoined:       "unjoined",
			TimeSaved:           "time saved",
			LocationSaved:       "location saved",
			InfoSaved:           "info saved",
			EditMessage:         "what to edit",
			EventsForToday:      "today's events",
			NoEventsChannel:     "nothing today, create one",
			PublishNoEvents:     "nothing to publish",
			PublishError:        "publish failed",
			WebNoEvents:         "no events",
			WebPublishError:     "web publish failed",
			QRCaption:           "qr",

			EventInfo:                   "{{.Title}} {{.Event.Type}} {{.Event.Time}} {{.Event.Location}} by {{.AuthorName}} [{{.Participants}}]",
			EventDeletedNotification:    "event on {{.Date}} at {{.Event.Location}} cancelled",
			JoinedNotification:          "{{.UserName}} joined your event on {{.Date}}",
			TimeChangedNotification:     "time on {{.Date}} changed from {{.Old}} to {{.New}}",
			LocationChangedNotification: "location on {{.Date}} changed from {{.Old}} to {{.New}}",
			InfoChangedNotification:     "info on {{.Date}} is now {{.New}}",
			EditTimePrompt:              "current time {{.Event.Time}}, enter new",
			EditLocationPrompt:          "current location {{.Event.Location}}, enter new",
			EditInfoPrompt:              "current info {{.Event.AdditionalInfo}}, enter new",
			PublishSuccess:              "published {{.Count}}",
			WebPublishSuccess:           "published {{.Count}} events",
		},
	}
}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewSQLiteRepository(db)
	if err := repo.CreateTables(); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return repo
}

// testClock pins "now" to a Saturday so date-window tests are deterministic.
var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)

func newTestService(t *testing.T) (*EventService, *SQLiteRepository, *fakeSender) {
	t.Helper()
	repo := newTestRepo(t)
	cfg := testConfig()
	tpls, err := NewTemplates(cfg.Messages)
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	sender := &fakeSender{failFor: make(map[int64]error)}
	svc := NewEventService(repo, sender, cfg, tpls)
	svc.now = func() time.Time { return testNow }
	return svc, repo, sender
}

// mustCreateUser inserts a user and fails the test on error.
func mustCreateUser(t *testing.T, repo *SQLiteRepository, telegramID, username, nickname string) User {
	t.Helper()
	u, _, err := repo.GetOrCreateUser(telegramID, username, nickname)
	if err != nil {
		t.Fatalf("create user %s: %v", telegramID, err)
	}
	return u
}

// mustCreateEvent inserts an event and fails the test on error.
func mustCreateEvent(t *testing.T, repo *SQLiteRepository, draft EventDraft) Event {
	t.Helper()
	ev, err := repo.CreateEvent(draft)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}
