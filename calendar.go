package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const (
	calPrefix = "cal;"
	calIgnore = "cal;nop"
)

var calendarMonthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

var calendarWeekdays = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// Calendar renders a navigable month picker as an inline keyboard. Weeks
// start on Monday; days before today and days outside the allowed subset
// show a locked look and do not select. Navigation clicks redraw the
// keyboard in place and report no selection.
type Calendar struct {
	mu      sync.Mutex
	now     func() time.Time
	horizon int // months ahead the picker can navigate
	views   map[int64]*calendarView
}

// calendarView is the per-chat picker state.
type calendarView struct {
	messageID int
	month     time.Time // first day of the displayed month
	allowed   map[string]bool
}

// NewCalendar creates a picker navigable from the current month up to
// horizonMonths ahead.
func NewCalendar(now func() time.Time, horizonMonths int) *Calendar {
	return &Calendar{now: now, horizon: horizonMonths, views: make(map[int64]*calendarView)}
}

// Start sends a fresh picker to the chat. A non-nil allowed list restricts
// selection to those dates; nil allows every date from today on.
func (c *Calendar) Start(out Sender, chatID int64, prompt string, allowed []string) error {
	view := &calendarView{month: firstOfMonth(c.now())}
	if allowed != nil {
		view.allowed = make(map[string]bool, len(allowed))
		for _, d := range allowed {
			view.allowed[d] = true
		}
	}
	msg := tgbotapi.NewMessage(chatID, prompt)
	msg.ReplyMarkup = c.keyboard(view)
	sent, err := out.Send(msg)
	if err != nil {
		return err
	}
	view.messageID = sent.MessageID
	c.mu.Lock()
	c.views[chatID] = view
	c.mu.Unlock()
	return nil
}

// Owns reports whether the message is this picker's message in the chat.
func (c *Calendar) Owns(chatID int64, messageID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[chatID]
	return ok && view.messageID == messageID
}

// HandleCallback processes a click on the picker. The returned date is empty
// for navigation and no-op clicks (the "not a final selection" sentinel).
func (c *Calendar) HandleCallback(out Sender, cq *tgbotapi.CallbackQuery) (string, error) {
	if cq.Message == nil {
		return "", nil
	}
	parts := strings.Split(cq.Data, ";")
	if len(parts) < 2 || parts[0]+";" != calPrefix {
		return "", nil
	}

	c.mu.Lock()
	view, ok := c.views[cq.Message.Chat.ID]
	if !ok {
		c.mu.Unlock()
		return "", nil
	}

	switch parts[1] {
	case "day":
		if len(parts) < 3 {
			c.mu.Unlock()
			return "", nil
		}
		date := parts[2]
		if view.allowed != nil && !view.allowed[date] {
			c.mu.Unlock()
			return "", nil
		}
		c.mu.Unlock()
		return date, nil
	case "prev", "next":
		delta := 1
		if parts[1] == "prev" {
			delta = -1
		}
		month := view.month.AddDate(0, delta, 0)
		first := firstOfMonth(c.now())
		last := first.AddDate(0, c.horizon, 0)
		if month.Before(first) || month.After(last) {
			c.mu.Unlock()
			return "", nil
		}
		view.month = month
		kb := c.keyboard(view)
		c.mu.Unlock()
		edit := tgbotapi.NewEditMessageReplyMarkup(cq.Message.Chat.ID, cq.Message.MessageID, kb)
		_, err := out.Send(edit)
		return "", err
	default:
		c.mu.Unlock()
		return "", nil
	}
}

func (c *Calendar) keyboard(view *calendarView) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	title := fmt.Sprintf("%s %d", calendarMonthNames[view.month.Month()-1], view.month.Year())
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("«", calPrefix+"prev"),
		tgbotapi.NewInlineKeyboardButtonData(title, calIgnore),
		tgbotapi.NewInlineKeyboardButtonData("»", calPrefix+"next"),
	))

	var header []tgbotapi.InlineKeyboardButton
	for _, wd := range calendarWeekdays {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(wd, calIgnore))
	}
	rows = append(rows, header)

	today := c.now().Format("2006-01-02")
	daysInMonth := view.month.AddDate(0, 1, -1).Day()
	offset := (int(view.month.Weekday()) + 6) % 7 // Monday first

	var week []tgbotapi.InlineKeyboardButton
	for i := 0; i < offset; i++ {
		week = append(week, tgbotapi.NewInlineKeyboardButtonData(" ", calIgnore))
	}
	for day := 1; day <= daysInMonth; day++ {
		date := view.month.AddDate(0, 0, day-1).Format("2006-01-02")
		selectable := date >= today && (view.allowed == nil || view.allowed[date])
		if selectable {
			week = append(week, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%d", day), calPrefix+"day;"+date))
		} else {
			week = append(week, tgbotapi.NewInlineKeyboardButtonData("✖", calIgnore))
		}
		if len(week) == 7 {
			rows = append(rows, week)
			week = nil
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, tgbotapi.NewInlineKeyboardButtonData(" ", calIgnore))
		}
		rows = append(rows, week)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
