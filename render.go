package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// EventCardParams feeds the event card template.
type EventCardParams struct {
	Title        string
	Event        Event
	AuthorName   string
	Participants string
}

// ChangeNoticeParams feeds the deletion and field-change notification
// templates. Old and New carry the edited value before and after.
type ChangeNoticeParams struct {
	Event Event
	Date  string
	Old   string
	New   string
}

// JoinedNoticeParams feeds the author notification sent on a new join.
type JoinedNoticeParams struct {
	Event    Event
	Date     string
	UserName string
}

// EditPromptParams feeds the single-field edit prompts.
type EditPromptParams struct {
	Event Event
}

// CountParams feeds the publish result messages.
type CountParams struct {
	Count int
}

// Templates holds the pre-parsed message templates. Parsing happens once at
// startup so a renamed field fails the boot instead of rendering blanks.
type Templates struct {
	eventCard             *template.Template
	deletedNotice         *template.Template
	joinedNotice          *template.Template
	timeChangedNotice     *template.Template
	locationChangedNotice *template.Template
	infoChangedNotice     *template.Template
	editTimePrompt        *template.Template
	editLocationPrompt    *template.Template
	editInfoPrompt        *template.Template
	publishSuccess        *template.Template
	webPublishSuccess     *template.Template
}

// NewTemplates parses the templated messages from the config.
func NewTemplates(m Messages) (*Templates, error) {
	t := &Templates{}
	for _, entry := range []struct {
		name string
		text string
		dst  **template.Template
	}{
		{"event_info", m.EventInfo, &t.eventCard},
		{"event_deleted_notification", m.EventDeletedNotification, &t.deletedNotice},
		{"joined_notification", m.JoinedNotification, &t.joinedNotice},
		{"time_changed_notification", m.TimeChangedNotification, &t.timeChangedNotice},
		{"location_changed_notification", m.LocationChangedNotification, &t.locationChangedNotice},
		{"info_changed_notification", m.InfoChangedNotification, &t.infoChangedNotice},
		{"edit_time_prompt", m.EditTimePrompt, &t.editTimePrompt},
		{"edit_location_prompt", m.EditLocationPrompt, &t.editLocationPrompt},
		{"edit_info_prompt", m.EditInfoPrompt, &t.editInfoPrompt},
		{"publish_success", m.PublishSuccess, &t.publishSuccess},
		{"web_publish_success", m.WebPublishSuccess, &t.webPublishSuccess},
	} {
		parsed, err := template.New(entry.name).Parse(entry.text)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.name, err)
		}
		*entry.dst = parsed
	}
	return t, nil
}

func render(t *template.Template, data interface{}) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (t *Templates) EventCard(p EventCardParams) (string, error)    { return render(t.eventCard, p) }
func (t *Templates) DeletedNotice(p ChangeNoticeParams) (string, error) {
	return render(t.deletedNotice, p)
}
func (t *Templates) JoinedNotice(p JoinedNoticeParams) (string, error) {
	return render(t.joinedNotice, p)
}
func (t *Templates) TimeChangedNotice(p ChangeNoticeParams) (string, error) {
	return render(t.timeChangedNotice, p)
}
func (t *Templates) LocationChangedNotice(p ChangeNoticeParams) (string, error) {
	return render(t.locationChangedNotice, p)
}
func (t *Templates) InfoChangedNotice(p ChangeNoticeParams) (string, error) {
	return render(t.infoChangedNotice, p)
}
func (t *Templates) EditTimePrompt(p EditPromptParams) (string, error) {
	return render(t.editTimePrompt, p)
}
func (t *Templates) EditLocationPrompt(p EditPromptParams) (string, error) {
	return render(t.editLocationPrompt, p)
}
func (t *Templates) EditInfoPrompt(p EditPromptParams) (string, error) {
	return render(t.editInfoPrompt, p)
}
func (t *Templates) PublishSuccess(p CountParams) (string, error) {
	return render(t.publishSuccess, p)
}
func (t *Templates) WebPublishSuccess(p CountParams) (string, error) {
	return render(t.webPublishSuccess, p)
}

var weekdayNames = [...]string{
	"Воскресенье", "Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота",
}

var monthNamesGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// humanDate renders a YYYY-MM-DD date as a card title, e.g.
// "Понедельник (10 марта)".
func humanDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s (%d %s)", weekdayNames[t.Weekday()], t.Day(), monthNamesGenitive[t.Month()-1])
}

// dotDate renders a YYYY-MM-DD date as DD.MM.YYYY for notifications.
func dotDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("02.01.2006")
}

// addDays shifts a YYYY-MM-DD date by n days.
func addDays(date string, n int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format("2006-01-02")
}

func callbackRef(action string, eventID int64) string {
	return action + "-" + strconv.FormatInt(eventID, 10)
}

// toggleKeyboard builds the join/unjoin affordances for an event card.
// Private chats get the single relevant action (plus publish for admins);
// any non-private chat gets both buttons.
func toggleKeyboard(cfg *Config, eventID int64, joined, admin, private bool) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if private {
		if joined {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Unjoin, callbackRef("unjoin", eventID))))
		} else {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Join, callbackRef("join", eventID))))
		}
		if admin {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Publish, callbackRef("publish", eventID))))
		}
	} else {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Join, callbackRef("join", eventID))),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Unjoin, callbackRef("unjoin", eventID))))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// authorKeyboard builds the edit/delete/publish affordances for an authored
// event card.
func authorKeyboard(cfg *Config, eventID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Edit, callbackRef("edit", eventID))),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Delete, callbackRef("delete", eventID))),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Publish, callbackRef("publish", eventID))),
	)
	return &kb
}

// editFieldKeyboard fans an edit action out to the three editable fields.
func editFieldKeyboard(cfg *Config, eventID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.EditTime, callbackRef("edit_time", eventID))),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.EditPlace, callbackRef("edit_place", eventID))),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.EditInfo, callbackRef("edit_info", eventID))),
	)
	return &kb
}

func unjoinKeyboard(cfg *Config, eventID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Unjoin, callbackRef("unjoin", eventID))))
	return &kb
}

func publishKeyboard(cfg *Config, eventID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Publish, callbackRef("publish", eventID))))
	return &kb
}

func infoKeyboard(cfg *Config, eventID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.Info, callbackRef("info", eventID))))
	return &kb
}

func findMenuKeyboard(cfg *Config) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.FindToday, "find_today")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.FindTomorrow, "find_tomorrow")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.FindWeek, "find_week")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Buttons.FindAll, "find_all")),
	)
	return &kb
}

func myEventsKeyboard(cfg *Config) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Messages.IAmAuthor, "imauthor")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cfg.Messages.IAmParticipant, "imparticipant")),
	)
	return &kb
}

func categoryKeyboard(cfg *Config) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cfg.EventTypes))
	for _, et := range cfg.EventTypes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(et, et)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// botLinkKeyboard builds a single URL button pointing at the bot, used in
// channel broadcasts.
func botLinkKeyboard(label, botUsername string) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(label, "https://t.me/"+botUsername)))
	return &kb
}
