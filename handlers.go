package main

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	qrcode "github.com/skip2/go-qrcode"
)

// Bot ties the transport to the services and routes every inbound update.
type Bot struct {
	api       Sender
	cfg       *Config
	repo      Repository
	sessions  *SessionManager
	engine    *DialogEngine
	service   *EventService
	createCal *Calendar
	findCal   *Calendar
}

// NewBot creates a new Bot
func NewBot(api Sender, cfg *Config, repo Repository, sessions *SessionManager,
	engine *DialogEngine, service *EventService, createCal, findCal *Calendar) *Bot {
	return &Bot{
		api:       api,
		cfg:       cfg,
		repo:      repo,
		sessions:  sessions,
		engine:    engine,
		service:   service,
		createCal: createCal,
		findCal:   findCal,
	}
}

// HandleUpdate wraps one interaction as load session, handle, save session.
// A store failure fails the whole interaction; no partial state is saved.
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	var from *tgbotapi.User
	switch {
	case update.CallbackQuery != nil:
		from = update.CallbackQuery.From
	case update.Message != nil:
		from = update.Message.From
	}
	if from == nil {
		return
	}
	telegramID := strconv.Itoa(from.ID)
	bag, err := b.sessions.Load(telegramID)
	if err != nil {
		log.Printf("load session %s: %v", telegramID, err)
		return
	}

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery, bag)
	case update.Message.IsCommand():
		b.handleCommand(update.Message, bag)
	case update.Message.Text != "":
		b.handleText(update.Message, bag)
	}

	if err := b.sessions.Save(telegramID, bag); err != nil {
		log.Printf("save session %s: %v", telegramID, err)
	}
}

// getOrCreateUser resolves the acting user, refreshing stored names when
// they drift from the transport's current values.
func (b *Bot) getOrCreateUser(from *tgbotapi.User) (User, error) {
	user, created, err := b.repo.GetOrCreateUser(strconv.Itoa(from.ID), from.FirstName, from.UserName)
	if err != nil {
		return User{}, err
	}
	if !created && (user.Username != from.FirstName || user.Nickname != from.UserName) {
		if err := b.repo.UpdateUserNames(user.ID, from.FirstName, from.UserName); err != nil {
			return User{}, err
		}
		user.Username = from.FirstName
		user.Nickname = from.UserName
	}
	return user, nil
}

// handleCommand routes commands to corresponding handlers. Commands are
// accepted in private chats only.
func (b *Bot) handleCommand(msg *tgbotapi.Message, bag *StateBag) {
	if !msg.Chat.IsPrivate() {
		return
	}
	var err error
	switch msg.Command() {
	case "start":
		err = b.cmdStart(msg)
	case "help":
		err = b.service.send(msg.Chat.ID, b.cfg.Messages.Start, nil)
	case "create":
		err = b.cmdCreate(msg, bag)
	case "find":
		err = b.service.send(msg.Chat.ID, b.cfg.Messages.ShowEvents, findMenuKeyboard(b.cfg))
	case "my_events":
		err = b.service.send(msg.Chat.ID, b.cfg.Messages.ChooseCategory, myEventsKeyboard(b.cfg))
	case "announcement":
		err = b.requireAdmin(b.cmdAnnouncement)(msg)
	case "qrcode":
		err = b.requireAdmin(b.cmdQRCode)(msg)
	default:
		err = b.service.send(msg.Chat.ID, b.cfg.Messages.UnknownCommand, nil)
	}
	if err != nil {
		log.Printf("command /%s: %v", msg.Command(), err)
	}
}

// cmdStart provisions the user and replies with the welcome text.
func (b *Bot) cmdStart(msg *tgbotapi.Message) error {
	if _, err := b.getOrCreateUser(msg.From); err != nil {
		return err
	}
	return b.service.send(msg.Chat.ID, b.cfg.Messages.Start, nil)
}

// cmdCreate starts the creation dialogue with a fresh draft and a date
// picker.
func (b *Bot) cmdCreate(msg *tgbotapi.Message, bag *StateBag) error {
	user, err := b.getOrCreateUser(msg.From)
	if err != nil {
		return err
	}
	bag.State = StateChooseDate.String()
	bag.NewEvent = &EventDraft{AuthorID: user.ID}
	bag.CalendarType = "create"
	return b.createCal.Start(b.api, msg.Chat.ID, b.cfg.Messages.ChooseDate, nil)
}

// cmdAnnouncement publishes today's digest to the channel.
func (b *Bot) cmdAnnouncement(msg *tgbotapi.Message) error {
	count, err := b.service.PublishToday()
	if err != nil {
		log.Printf("announcement: %v", err)
		return b.service.send(msg.Chat.ID, b.cfg.Messages.PublishError, nil)
	}
	if count == 0 {
		return b.service.send(msg.Chat.ID, b.cfg.Messages.PublishNoEvents, nil)
	}
	text, err := b.service.tpls.PublishSuccess(CountParams{Count: count})
	if err != nil {
		return err
	}
	return b.service.send(msg.Chat.ID, text, nil)
}

// cmdQRCode sends a QR code with a deep link to the bot, for channel
// publicity.
func (b *Bot) cmdQRCode(msg *tgbotapi.Message) error {
	png, err := qrcode.Encode("https://t.me/"+b.cfg.BotUsername, qrcode.Medium, 256)
	if err != nil {
		return err
	}
	photo := tgbotapi.NewPhotoUpload(msg.Chat.ID, tgbotapi.FileBytes{Name: "bot_link.png", Bytes: png})
	photo.Caption = b.cfg.Messages.QRCaption
	_, err = b.api.Send(photo)
	return err
}

// handleText feeds free text into the dialogue engine. Group-context text is
// ignored outright.
func (b *Bot) handleText(msg *tgbotapi.Message, bag *StateBag) {
	if !msg.Chat.IsPrivate() {
		return
	}
	if _, err := b.getOrCreateUser(msg.From); err != nil {
		log.Printf("text from %d: %v", msg.From.ID, err)
		return
	}
	if err := b.engine.HandleText(bag, msg.Chat.ID, msg.Text); err != nil {
		log.Printf("dialog input from %d: %v", msg.From.ID, err)
	}
}

// actionKind enumerates every affordance payload the bot understands.
type actionKind int

const (
	actionUnknown actionKind = iota
	actionJoin
	actionUnjoin
	actionDelete
	actionPublish
	actionEdit
	actionEditTime
	actionEditPlace
	actionEditInfo
	actionInfo
	actionAuthorEvents
	actionParticipantEvents
	actionFindToday
	actionFindTomorrow
	actionFindWeek
	actionFindAll
	actionCategory
	actionCalendar
)

// callbackAction is the parsed form of a callback payload.
type callbackAction struct {
	kind     actionKind
	eventID  int64
	category string
}

// parseCallback decodes an opaque payload into a typed action.
func (b *Bot) parseCallback(data string) callbackAction {
	switch data {
	case "imauthor":
		return callbackAction{kind: actionAuthorEvents}
	case "imparticipant":
		return callbackAction{kind: actionParticipantEvents}
	case "find_today":
		return callbackAction{kind: actionFindToday}
	case "find_tomorrow":
		return callbackAction{kind: actionFindTomorrow}
	case "find_week":
		return callbackAction{kind: actionFindWeek}
	case "find_all":
		return callbackAction{kind: actionFindAll}
	}
	if strings.HasPrefix(data, calPrefix) {
		return callbackAction{kind: actionCalendar}
	}
	if b.cfg.IsEventType(data) {
		return callbackAction{kind: actionCategory, category: data}
	}
	idx := strings.LastIndex(data, "-")
	if idx <= 0 {
		return callbackAction{kind: actionUnknown}
	}
	eventID, err := strconv.ParseInt(data[idx+1:], 10, 64)
	if err != nil {
		return callbackAction{kind: actionUnknown}
	}
	kinds := map[string]actionKind{
		"join":       actionJoin,
		"unjoin":     actionUnjoin,
		"delete":     actionDelete,
		"publish":    actionPublish,
		"edit":       actionEdit,
		"edit_time":  actionEditTime,
		"edit_place": actionEditPlace,
		"edit_info":  actionEditInfo,
		"info":       actionInfo,
	}
	kind, ok := kinds[data[:idx]]
	if !ok {
		return callbackAction{kind: actionUnknown}
	}
	return callbackAction{kind: kind, eventID: eventID}
}

// handleCallback dispatches a discrete affordance selection.
func (b *Bot) handleCallback(cq *tgbotapi.CallbackQuery, bag *StateBag) {
	action := b.parseCallback(cq.Data)
	var err error
	switch action.kind {
	case actionJoin:
		err = b.handleToggle(cq, action.eventID, true)
	case actionUnjoin:
		err = b.handleToggle(cq, action.eventID, false)
	case actionDelete:
		err = b.handleDelete(cq, action.eventID)
	case actionPublish:
		err = b.handlePublish(cq, action.eventID)
	case actionEdit:
		err = b.handleEditMenu(cq, action.eventID)
	case actionEditTime:
		err = b.handleFieldEdit(cq, bag, action.eventID, FieldTime)
	case actionEditPlace:
		err = b.handleFieldEdit(cq, bag, action.eventID, FieldLocation)
	case actionEditInfo:
		err = b.handleFieldEdit(cq, bag, action.eventID, FieldAdditionalInfo)
	case actionInfo:
		err = b.handleInfo(cq, action.eventID)
	case actionAuthorEvents:
		err = b.handleAuthorEvents(cq)
	case actionParticipantEvents:
		err = b.handleParticipantEvents(cq)
	case actionFindToday:
		today := b.service.Today()
		err = b.handleFindWindow(cq, today, addDays(today, 1), b.cfg.Buttons.FindToday, b.cfg.Messages.NoEventsToday)
	case actionFindTomorrow:
		tomorrow := addDays(b.service.Today(), 1)
		err = b.handleFindWindow(cq, tomorrow, addDays(tomorrow, 1), b.cfg.Buttons.FindTomorrow, b.cfg.Messages.NoEventsTomorrow)
	case actionFindWeek:
		today := b.service.Today()
		err = b.handleFindWindow(cq, today, addDays(today, 7), b.cfg.Buttons.FindWeek, b.cfg.Messages.NoEventsThisWeek)
	case actionFindAll:
		err = b.handleFindAll(cq, bag)
	case actionCategory:
		err = b.handleCategory(cq, bag, action.category)
	case actionCalendar, actionUnknown:
		err = b.handleCalendarClick(cq, bag)
	}
	if err != nil {
		log.Printf("callback %q: %v", cq.Data, err)
	}
}

// answer acknowledges a callback, optionally with a toast text.
func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.AnswerCallbackQuery(tgbotapi.NewCallback(callbackID, text)); err != nil {
		log.Printf("answer callback: %v", err)
	}
}

// handleToggle joins or unjoins the acting user and, on a real membership
// change, refreshes the tapped card in place. The action is acknowledged
// either way.
func (b *Bot) handleToggle(cq *tgbotapi.CallbackQuery, eventID int64, join bool) error {
	user, err := b.getOrCreateUser(cq.From)
	if err != nil {
		return err
	}
	var changed bool
	if join {
		changed, err = b.service.Join(eventID, user)
	} else {
		changed, err = b.service.Unjoin(eventID, user.ID)
	}
	if errors.Is(err, ErrNotFound) {
		b.answer(cq.ID, b.cfg.Messages.UnknownCommand)
		return nil
	}
	if err != nil {
		return err
	}

	if changed && cq.Message != nil {
		if err := b.refreshCard(cq, eventID, user, join); err != nil {
			log.Printf("refresh card %d: %v", eventID, err)
		}
	}
	if join {
		b.answer(cq.ID, b.cfg.Messages.EventJoined)
	} else {
		b.answer(cq.ID, b.cfg.Messages.EventUnjoined)
	}
	return nil
}

// refreshCard re-renders an event card and its affordances where it is
// currently displayed.
func (b *Bot) refreshCard(cq *tgbotapi.CallbackQuery, eventID int64, user User, joined bool) error {
	ev, err := b.service.Event(eventID)
	if err != nil {
		return err
	}
	card, err := b.service.EventCard(*ev)
	if err != nil {
		return err
	}
	private := cq.Message.Chat.IsPrivate()
	kb := toggleKeyboard(b.cfg, eventID, joined, b.cfg.IsAdmin(user.TelegramID), private)
	edit := tgbotapi.NewEditMessageText(cq.Message.Chat.ID, cq.Message.MessageID, card)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = kb
	_, err = b.api.Send(edit)
	return err
}

// handleDelete removes an authored event, notifying its participants.
func (b *Bot) handleDelete(cq *tgbotapi.CallbackQuery, eventID int64) error {
	user, err := b.getOrCreateUser(cq.From)
	if err != nil {
		return err
	}
	ev, err := b.service.Event(eventID)
	if errors.Is(err, ErrNotFound) {
		b.answer(cq.ID, b.cfg.Messages.UnknownCommand)
		return nil
	}
	if err != nil {
		return err
	}
	if ev.AuthorID != user.ID {
		b.answer(cq.ID, b.cfg.Messages.AccessDenied)
		return nil
	}
	if err := b.service.DeleteEvent(eventID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if cq.Message != nil {
		if _, err := b.api.Send(tgbotapi.NewDeleteMessage(cq.Message.Chat.ID, cq.Message.MessageID)); err != nil {
			log.Printf("delete card message: %v", err)
		}
	}
	b.answer(cq.ID, b.cfg.Messages.EventDeleted)
	return nil
}

// handlePublish broadcasts one event card to the channel. Allowed for the
// author and for admins.
func (b *Bot) handlePublish(cq *tgbotapi.CallbackQuery, eventID int64) error {
	user, err := b.getOrCreateUser(cq.From)
	if err != nil {
		return err
	}
	ev, err := b.service.Event(eventID)
	if errors.Is(err, ErrNotFound) {
		b.answer(cq.ID, b.cfg.Messages.UnknownCommand)
		return nil
	}
	if err != nil {
		return err
	}
	if ev.AuthorID != user.ID && !b.cfg.IsAdmin(user.TelegramID) {
		b.answer(cq.ID, b.cfg.Messages.AccessDenied)
		return nil
	}
	if err := b.service.PublishEvent(eventID); err != nil {
		return err
	}
	b.answer(cq.ID, b.cfg.Messages.EventPublished)
	return nil
}

// handleEditMenu fans out to the per-field edit buttons.
func (b *Bot) handleEditMenu(cq *tgbotapi.CallbackQuery, eventID int64) error {
	if cq.Message == nil {
		return nil
	}
	b.answer(cq.ID, "")
	return b.service.send(cq.Message.Chat.ID, b.cfg.Messages.EditMessage, editFieldKeyboard(b.cfg, eventID))
}

// handleFieldEdit starts a single-field edit dialogue. Author only.
func (b *Bot) handleFieldEdit(cq *tgbotapi.CallbackQuery, bag *StateBag, eventID int64, field EventField) error {
	if cq.Message == nil {
		return nil
	}
	user, err := b.getOrCreateUser(cq.From)
	if err != nil {
		return err
	}
	ev, err := b.service.Event(eventID)
	if errors.Is(err, ErrNotFound) {
		b.answer(cq.ID, b.cfg.Messages.UnknownCommand)
		return nil
	}
	if err != nil {
		return err
	}
	if ev.AuthorID != user.ID {
		b.answer(cq.ID, b.cfg.Messages.AccessDenied)
		return nil
	}
	b.answer(cq.ID, "")
	return b.engine.StartEdit(bag, cq.Message.Chat.ID, *ev, field)
}

// handleInfo replies with the event card.
func (b *Bot) handleInfo(cq *tgbotapi.CallbackQuery, eventID int64) error {
	if cq.Message == nil {
		return nil
	}
	ev, err := b.service.Event(eventID)
	if errors.Is(err, ErrNotFound) {
		b.answer(cq.ID, b.cfg.Messages.UnknownCommand)
		return nil
	}
	if err != nil {
		return err
	}
	card, err := b.service.EventCard(*ev)
	if err != nil {
		return err
	}
	b.answer(cq.ID, "")
	return b.service.send(cq.Message.Chat.ID, card, nil)
}

// handleAuthorEvents lists the acting user's future authored events with
// edit, delete and publish affordances.
func (b *Bot) handleAuthorEvents(cq *tgbotapi.CallbackQuery) error {
	if cq.Message == nil || !cq.Message.Chat.IsPrivate() {
		return nil
	}
	user, err := b.getOrCreateUser(cq.From)
	if err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewDeleteMessage(cq.Message.Chat.ID, cq.Message.MessageID)); err != nil {
		log.Printf("delete menu message: %v", err)
	}
	events, err := b.service.EventsByAuthor(user.ID)
	if err != nil {
		return err
	}
	b.answer(cq.ID, "")
	if len(events) == 0 {
		return b.service.send(cq.Message.Chat.ID, b.cfg.Messages.NoEvents, nil)
	}
	for _, ev := range events {
		card, err := b.service.EventCard(ev)
		if err != nil {
			log.Printf("render event %d: %v", ev.ID, err)
			continue
		}
		if err := b.service.send(cq.Message.Chat.ID, card, authorKeyboard(b.cfg, ev.ID)); err != nil {
			return err
		}
	}
	return nil
}

// handleParticipantEvents lists the acting user's future joined events with
// an unjoin affordance.
func (b *Bot) handleParticipantEvents(cq *tgbotapi.CallbackQuery) error {
	if cq.Message == nil || !cq.Message.Chat.IsPrivate() {
		return nil
	}
	user, err := b.getOrCreateUser(cq.From)
	if err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewDeleteMessage(cq.Message.Chat.ID, cq.Message.MessageID)); err != nil {
		log.Printf("delete menu message: %v", err)
	}
	events, err := b.service.EventsByParticipant(user.ID)
	if err != nil {
		return err
	}
	b.answer(cq.ID, "")
	if len(events) == 0 {
		return b.service.send(cq.Message.Chat.ID, b.cfg.Messages.NoEvents, nil)
	}
	for _, ev := range events {
		card, err := b.service.EventCard(ev)
		if err != nil {
			log.Printf("render event %d: %v", ev.ID, err)
			continue
		}
		if err := b.service.send(cq.Message.Chat.ID, card, unjoinKeyboard(b.cfg, ev.ID)); err != nil {
			return err
		}
	}
	return nil
}

// handleFindWindow lists events in a date window with toggle affordances.
func (b *Bot) handleFindWindow(cq *tgbotapi.CallbackQuery, from, to, header, emptyMessage string) error {
	if cq.Message == nil || !cq.Message.Chat.IsPrivate() {
		return nil
	}
	user, err := b.getOrCreateUser(cq.From)
	if err != nil {
		return err
	}
	b.answer(cq.ID, "")
	return b.findAndDisplayEvents(cq.Message.Chat.ID, user, true, from, to, header, emptyMessage)
}

// findAndDisplayEvents sends one card per event in [from, to) with the
// relevant toggle affordances for the acting user.
func (b *Bot) findAndDisplayEvents(chatID int64, actor User, private bool, from, to, header, emptyMessage string) error {
	events, err := b.service.EventsBetween(from, to)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return b.service.send(chatID, emptyMessage, nil)
	}
	if err := b.service.send(chatID, header+":", nil); err != nil {
		return err
	}
	admin := b.cfg.IsAdmin(actor.TelegramID)
	for _, ev := range events {
		card, err := b.service.EventCard(ev)
		if err != nil {
			log.Printf("render event %d: %v", ev.ID, err)
			continue
		}
		joined, err := b.repo.IsParticipant(ev.ID, actor.ID)
		if err != nil {
			return err
		}
		if err := b.service.send(chatID, card, toggleKeyboard(b.cfg, ev.ID, joined, admin, private)); err != nil {
			return err
		}
	}
	return nil
}

// handleFindAll opens the browse calendar restricted to dates that have
// events.
func (b *Bot) handleFindAll(cq *tgbotapi.CallbackQuery, bag *StateBag) error {
	if cq.Message == nil || !cq.Message.Chat.IsPrivate() {
		return nil
	}
	today := b.service.Today()
	dates, err := b.service.EventDates(today, addMonths(today, 6))
	if err != nil {
		return err
	}
	if dates == nil {
		dates = []string{}
	}
	bag.State = StateFindEventsOnDate.String()
	bag.CalendarType = "find"
	b.answer(cq.ID, "")
	return b.findCal.Start(b.api, cq.Message.Chat.ID, b.cfg.Messages.ChooseDate, dates)
}

// handleCategory records a category selection in the creation dialogue.
func (b *Bot) handleCategory(cq *tgbotapi.CallbackQuery, bag *StateBag, category string) error {
	if cq.Message == nil || !cq.Message.Chat.IsPrivate() {
		return nil
	}
	b.answer(cq.ID, "")
	return b.engine.HandleCategory(bag, cq.Message.Chat.ID, category)
}

// handleCalendarClick routes clicks on the active date picker; anything else
// gets the unknown-command reply.
func (b *Bot) handleCalendarClick(cq *tgbotapi.CallbackQuery, bag *StateBag) error {
	if cq.Message == nil {
		b.answer(cq.ID, "")
		return nil
	}
	cal := b.createCal
	if bag.CalendarType == "find" {
		cal = b.findCal
	}
	if !cal.Owns(cq.Message.Chat.ID, cq.Message.MessageID) {
		b.answer(cq.ID, "")
		return b.service.send(cq.Message.Chat.ID, b.cfg.Messages.UnknownCommand, nil)
	}
	date, err := cal.HandleCallback(b.api, cq)
	if err != nil {
		return err
	}
	b.answer(cq.ID, "")
	if date == "" {
		return nil
	}
	if parseDialogState(bag.State) == StateFindEventsOnDate {
		user, err := b.getOrCreateUser(cq.From)
		if err != nil {
			return err
		}
		return b.findAndDisplayEvents(cq.Message.Chat.ID, user, cq.Message.Chat.IsPrivate(),
			date, addDays(date, 1), b.cfg.Buttons.FindDate, b.cfg.Messages.NoUpcomingEvents)
	}
	return b.engine.HandleDateChosen(bag, cq.Message.Chat.ID, date)
}

// addMonths shifts a YYYY-MM-DD date by n months.
func addMonths(date string, n int) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.AddDate(0, n, 0).Format("2006-01-02")
}
