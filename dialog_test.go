package main

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

func newTestEngine(t *testing.T) (*DialogEngine, *SQLiteRepository, *fakeSender) {
	t.Helper()
	svc, repo, sender := newTestService(t)
	return NewDialogEngine(svc.cfg, svc), repo, sender
}

func TestValidateDate(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"2025-03-10", true},
		{"2025-13-10", false},
		{"2025-02-30", false},
		{"10.03.2025", false},
		{"2025-3-10", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidateDate(c.input); got != c.want {
			t.Errorf("ValidateDate(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestValidateTime(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"18:30", true},
		{"18:30-20:00", true},
		{"18:30 - 20:00", true},
		{"25:99", false},
		{"18:30-24:00", false},
		{"7:30", false},
		{"evening", false},
	}
	for _, c := range cases {
		if got := ValidateTime(c.input); got != c.want {
			t.Errorf("ValidateTime(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestDateInputAdvancesToTime(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{State: StateChooseDate.String()}

	if err := engine.HandleText(bag, 10, "2025-03-10"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if bag.State != StateChooseTime.String() {
		t.Errorf("expected state choose_time, got %q", bag.State)
	}
	if bag.NewEvent == nil || bag.NewEvent.Date != "2025-03-10" {
		t.Errorf("expected date captured in draft, got %+v", bag.NewEvent)
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "choose time" {
		t.Errorf("expected time prompt, got %q", got)
	}
}

func TestInvalidTimeDoesNotAdvance(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{State: StateChooseTime.String()}

	if err := engine.HandleText(bag, 10, "25:99"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if bag.State != StateChooseTime.String() {
		t.Errorf("expected state unchanged, got %q", bag.State)
	}
	if bag.NewEvent != nil && bag.NewEvent.Time != "" {
		t.Errorf("expected no time captured, got %q", bag.NewEvent.Time)
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "invalid input" {
		t.Errorf("expected invalid-input reply, got %q", got)
	}
}

func TestValidTimeAdvancesWithCategoryKeyboard(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{State: StateChooseTime.String()}

	if err := engine.HandleText(bag, 10, "18:30 - 20:00"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if bag.State != StateChooseType.String() {
		t.Errorf("expected state choose_type, got %q", bag.State)
	}
	msg := sender.lastMessageTo(t, 10)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) == 0 {
		t.Fatalf("expected a category keyboard, got %#v", msg.ReplyMarkup)
	}
}

func TestStaticCategorySkipsDistanceAndPace(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{
		State:    StateChooseLocation.String(),
		NewEvent: &EventDraft{Type: "board_games"},
	}

	if err := engine.HandleText(bag, 10, "club"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if bag.State != StateEnterAdditionalInfo.String() {
		t.Errorf("expected static category to skip to enter_additional_info, got %q", bag.State)
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "enter info" {
		t.Errorf("expected additional-info prompt, got %q", got)
	}
}

func TestNonStaticCategoryAsksDistance(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{
		State:    StateChooseLocation.String(),
		NewEvent: &EventDraft{Type: "run"},
	}

	if err := engine.HandleText(bag, 10, "park"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if bag.State != StateChooseDistance.String() {
		t.Errorf("expected state choose_distance, got %q", bag.State)
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "choose distance" {
		t.Errorf("expected distance prompt, got %q", got)
	}
}

func TestHandleCategory(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{State: StateChooseType.String()}

	if err := engine.HandleCategory(bag, 10, "bike"); err != nil {
		t.Fatalf("HandleCategory failed: %v", err)
	}
	if bag.State != StateChooseLocation.String() {
		t.Errorf("expected state choose_location, got %q", bag.State)
	}
	if bag.NewEvent == nil || bag.NewEvent.Type != "bike" {
		t.Errorf("expected category captured, got %+v", bag.NewEvent)
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "choose location" {
		t.Errorf("expected location prompt, got %q", got)
	}
}

func TestFinalStepPersistsEvent(t *testing.T) {
	engine, repo, sender := newTestEngine(t)
	author := mustCreateUser(t, repo, "10", "Author", "")
	bag := &StateBag{
		State: StateEnterAdditionalInfo.String(),
		NewEvent: &EventDraft{
			Date:     "2025-03-10",
			Time:     "18:30",
			Type:     "run",
			Location: "park",
			Distance: "5k",
			Pace:     "6:00",
			AuthorID: author.ID,
		},
	}

	if err := engine.HandleText(bag, 10, "bring water"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if bag.State != "" {
		t.Errorf("expected dialogue finished, got state %q", bag.State)
	}

	events, err := repo.EventsByAuthor(author.ID, "2025-03-01")
	if err != nil {
		t.Fatalf("EventsByAuthor failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
	if events[0].AdditionalInfo != "bring water" {
		t.Errorf("expected additional info persisted, got %q", events[0].AdditionalInfo)
	}

	texts := sender.textsTo(10)
	if len(texts) != 1 || texts[0] != "event created" {
		t.Fatalf("expected a single confirmation, got %v", texts)
	}
	msg := sender.lastMessageTo(t, 10)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) == 0 {
		t.Fatalf("expected a publish keyboard, got %#v", msg.ReplyMarkup)
	}
	data := *kb.InlineKeyboard[0][0].CallbackData
	if !strings.HasPrefix(data, "publish-") {
		t.Errorf("expected a publish callback, got %q", data)
	}
}

func TestIncompleteDraftFailsCreation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	bag := &StateBag{
		State:    StateEnterAdditionalInfo.String(),
		NewEvent: &EventDraft{Date: "2025-03-10"},
	}
	if err := engine.HandleText(bag, 10, "info"); err == nil {
		t.Error("expected an error for a draft missing mandatory fields")
	}
}

func TestStartEditPromptsWithCurrentValue(t *testing.T) {
	engine, repo, sender := newTestEngine(t)
	author := mustCreateUser(t, repo, "10", "Author", "")
	ev := mustCreateEvent(t, repo, EventDraft{Date: "2025-03-10", Time: "18:30", Type: "run", Location: "park", AuthorID: author.ID})
	bag := &StateBag{}

	if err := engine.StartEdit(bag, 10, ev, FieldTime); err != nil {
		t.Fatalf("StartEdit failed: %v", err)
	}
	if bag.State != StateSaveNewTime.String() {
		t.Errorf("expected state save_new_time, got %q", bag.State)
	}
	if bag.EditEventID != ev.ID {
		t.Errorf("expected edit target %d, got %d", ev.ID, bag.EditEventID)
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "current time 18:30, enter new" {
		t.Errorf("unexpected edit prompt %q", got)
	}
}

func TestSaveNewTimeUpdatesAndNotifies(t *testing.T) {
	engine, repo, sender := newTestEngine(t)
	author := mustCreateUser(t, repo, "10", "Author", "")
	p1 := mustCreateUser(t, repo, "2", "One", "")
	p2 := mustCreateUser(t, repo, "3", "Two", "")
	ev := mustCreateEvent(t, repo, EventDraft{Date: "2025-03-10", Time: "18:30", Type: "run", Location: "park", AuthorID: author.ID})
	for _, u := range []User{p1, p2} {
		if _, err := repo.AddParticipant(ev.ID, u.ID); err != nil {
			t.Fatalf("AddParticipant failed: %v", err)
		}
	}

	bag := &StateBag{State: StateSaveNewTime.String(), EditEventID: ev.ID}
	if err := engine.HandleText(bag, 10, "19:00"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if bag.State != "" || bag.EditEventID != 0 {
		t.Errorf("expected edit flow finished, got %+v", bag)
	}

	got, err := repo.GetEvent(ev.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got.Time != "19:00" {
		t.Errorf("expected time updated to 19:00, got %q", got.Time)
	}

	want := "time on 10.03.2025 changed from 18:30 to 19:00"
	for _, chatID := range []int64{2, 3} {
		texts := sender.textsTo(chatID)
		if len(texts) != 1 || texts[0] != want {
			t.Errorf("chat %d: expected one change notification %q, got %v", chatID, want, texts)
		}
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "time saved" {
		t.Errorf("expected confirmation, got %q", got)
	}
}

func TestEditOfVanishedEventAnswersNeutrally(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{State: StateSaveNewLocation.String(), EditEventID: 999}

	if err := engine.HandleText(bag, 10, "forest"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	texts := sender.textsTo(10)
	if len(texts) != 1 || texts[0] != "unknown command" {
		t.Errorf("expected a single neutral reply, got %v", texts)
	}
}

func TestUnknownStateRepliesUnknownCommand(t *testing.T) {
	engine, _, sender := newTestEngine(t)
	bag := &StateBag{}

	if err := engine.HandleText(bag, 10, "hello"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}
	if got := sender.lastMessageTo(t, 10).Text; got != "unknown command" {
		t.Errorf("expected unknown-command reply, got %q", got)
	}
}
