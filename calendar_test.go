package main

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

func testCalendar(horizon int) *Calendar {
	return NewCalendar(func() time.Time { return testNow }, horizon)
}

func startCalendar(t *testing.T, cal *Calendar, sender *fakeSender, chatID int64, allowed []string) int {
	t.Helper()
	if err := cal.Start(sender, chatID, "pick a date", allowed); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return sender.nextID
}

func calClick(chatID int64, messageID int, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb1",
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		},
	}
}

func TestCalendarStartAndOwns(t *testing.T) {
	cal := testCalendar(6)
	sender := &fakeSender{}
	msgID := startCalendar(t, cal, sender, 10, nil)

	if !cal.Owns(10, msgID) {
		t.Error("expected the picker to own its own message")
	}
	if cal.Owns(10, msgID+1) {
		t.Error("expected other messages not to be owned")
	}
	if cal.Owns(11, msgID) {
		t.Error("expected other chats not to be owned")
	}
}

func TestCalendarDaySelection(t *testing.T) {
	cal := testCalendar(6)
	sender := &fakeSender{}
	msgID := startCalendar(t, cal, sender, 10, nil)

	date, err := cal.HandleCallback(sender, calClick(10, msgID, "cal;day;2025-03-10"))
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if date != "2025-03-10" {
		t.Errorf("expected the clicked date, got %q", date)
	}
}

func TestCalendarAllowedListRestrictsSelection(t *testing.T) {
	cal := testCalendar(6)
	sender := &fakeSender{}
	msgID := startCalendar(t, cal, sender, 10, []string{"2025-03-10"})

	date, err := cal.HandleCallback(sender, calClick(10, msgID, "cal;day;2025-03-12"))
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if date != "" {
		t.Errorf("expected no selection for a date outside the allowed list, got %q", date)
	}

	date, err = cal.HandleCallback(sender, calClick(10, msgID, "cal;day;2025-03-10"))
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if date != "2025-03-10" {
		t.Errorf("expected the allowed date, got %q", date)
	}
}

func TestCalendarNavigationEditsInPlace(t *testing.T) {
	cal := testCalendar(6)
	sender := &fakeSender{}
	msgID := startCalendar(t, cal, sender, 10, nil)
	before := len(sender.attempts)

	date, err := cal.HandleCallback(sender, calClick(10, msgID, "cal;next"))
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if date != "" {
		t.Errorf("expected navigation to report no selection, got %q", date)
	}
	if len(sender.attempts) != before+1 {
		t.Fatalf("expected one edit, got %d new attempts", len(sender.attempts)-before)
	}
	edit, ok := sender.attempts[before].(tgbotapi.EditMessageReplyMarkupConfig)
	if !ok {
		t.Fatalf("expected an in-place markup edit, got %T", sender.attempts[before])
	}
	if edit.MessageID != msgID {
		t.Errorf("expected edit of message %d, got %d", msgID, edit.MessageID)
	}
}

func TestCalendarClampsToHorizon(t *testing.T) {
	cal := testCalendar(1)
	sender := &fakeSender{}
	msgID := startCalendar(t, cal, sender, 10, nil)

	// Backwards past the current month is a no-op.
	before := len(sender.attempts)
	if date, err := cal.HandleCallback(sender, calClick(10, msgID, "cal;prev")); err != nil || date != "" {
		t.Fatalf("prev: got (%q, %v)", date, err)
	}
	if len(sender.attempts) != before {
		t.Error("expected no edit when navigating before the current month")
	}

	// One month ahead is within the horizon, two is not.
	if _, err := cal.HandleCallback(sender, calClick(10, msgID, "cal;next")); err != nil {
		t.Fatalf("next: %v", err)
	}
	before = len(sender.attempts)
	if date, err := cal.HandleCallback(sender, calClick(10, msgID, "cal;next")); err != nil || date != "" {
		t.Fatalf("second next: got (%q, %v)", date, err)
	}
	if len(sender.attempts) != before {
		t.Error("expected no edit past the horizon")
	}
}

func TestCalendarIgnoresNop(t *testing.T) {
	cal := testCalendar(6)
	sender := &fakeSender{}
	msgID := startCalendar(t, cal, sender, 10, nil)
	before := len(sender.attempts)

	date, err := cal.HandleCallback(sender, calClick(10, msgID, "cal;nop"))
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if date != "" || len(sender.attempts) != before {
		t.Errorf("expected a no-op, got date %q and %d new attempts", date, len(sender.attempts)-before)
	}
}

func TestCalendarKeyboardOffersFutureDays(t *testing.T) {
	cal := testCalendar(6)
	sender := &fakeSender{}
	startCalendar(t, cal, sender, 10, nil)

	msg := sender.lastMessageTo(t, 10)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected a keyboard, got %#v", msg.ReplyMarkup)
	}
	var datas []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				datas = append(datas, *b.CallbackData)
			}
		}
	}
	found := false
	for _, d := range datas {
		if d == "cal;day;2025-03-10" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a selectable button for 2025-03-10, got %v", datas)
	}
}
