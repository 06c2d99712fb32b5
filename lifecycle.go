package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Sender is the slice of the chat transport the services need. It is
// satisfied by *tgbotapi.BotAPI and by fakes in tests.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	AnswerCallbackQuery(config tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error)
}

// EventService implements the event lifecycle: create, delete, toggle
// participation, edit fields, publish and the date-window queries. When an
// operation both mutates state and notifies users, the mutation is committed
// before any notification is attempted.
type EventService struct {
	repo Repository
	out  Sender
	cfg  *Config
	tpls *Templates
	now  func() time.Time
}

// NewEventService creates a new EventService
func NewEventService(repo Repository, out Sender, cfg *Config, tpls *Templates) *EventService {
	return &EventService{repo: repo, out: out, cfg: cfg, tpls: tpls, now: time.Now}
}

// Today returns the start-of-day date in the local reference timezone.
func (s *EventService) Today() string {
	return s.now().Format("2006-01-02")
}

// send delivers an HTML message with an optional keyboard to a chat.
func (s *EventService) send(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	_, err := s.out.Send(msg)
	return err
}

// sendToUser delivers a notification to a user's private chat. Blocked users
// are skipped; a permanent block signal marks the user so future sends skip
// them too. Delivery failures are logged, never propagated, so one bad
// recipient cannot abort a notification batch.
func (s *EventService) sendToUser(u User, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if u.Blocked {
		return
	}
	chatID, err := strconv.ParseInt(u.TelegramID, 10, 64)
	if err != nil {
		log.Printf("notify %s: bad telegram id: %v", u.TelegramID, err)
		return
	}
	if err := s.send(chatID, text, keyboard); err != nil {
		log.Printf("notify %s: %v", u.TelegramID, err)
		if isBlockedErr(err) {
			if merr := s.repo.MarkUserBlocked(u.TelegramID); merr != nil {
				log.Printf("mark %s blocked: %v", u.TelegramID, merr)
			}
		}
	}
}

// isBlockedErr detects the permanent "bot was blocked by the user" signal.
func isBlockedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "blocked by the user")
}

// CreateEvent persists a completed draft as a new event. Date, time,
// category and location are mandatory; the rest may be empty.
func (s *EventService) CreateEvent(draft EventDraft) (Event, error) {
	if draft.Date == "" || draft.Time == "" || draft.Type == "" || draft.Location == "" {
		return Event{}, fmt.Errorf("incomplete draft: date, time, type and location are required")
	}
	return s.repo.CreateEvent(draft)
}

// DeleteEvent removes an event and then notifies the participants it had.
// The participant list is captured before the delete commits; notification
// is best effort.
func (s *EventService) DeleteEvent(eventID int64) error {
	ev, err := s.repo.GetEvent(eventID)
	if err != nil {
		return err
	}
	participants, err := s.repo.Participants(eventID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(eventID); err != nil {
		return err
	}
	text, err := s.tpls.DeletedNotice(ChangeNoticeParams{Event: *ev, Date: dotDate(ev.Date)})
	if err != nil {
		log.Printf("render deleted notice: %v", err)
		return nil
	}
	for _, p := range participants {
		s.sendToUser(p, text, nil)
	}
	return nil
}

// Join adds a user to an event. Idempotent: a duplicate tap changes nothing
// and sends nothing. The author is notified once per real membership change.
func (s *EventService) Join(eventID int64, user User) (bool, error) {
	ev, err := s.repo.GetEvent(eventID)
	if err != nil {
		return false, err
	}
	added, err := s.repo.AddParticipant(eventID, user.ID)
	if err != nil || !added {
		return false, err
	}
	author, err := s.repo.GetUserByID(ev.AuthorID)
	if err != nil {
		log.Printf("event %d: author %d: %v", eventID, ev.AuthorID, err)
		return true, nil
	}
	text, err := s.tpls.JoinedNotice(JoinedNoticeParams{Event: *ev, Date: dotDate(ev.Date), UserName: user.DisplayName()})
	if err != nil {
		log.Printf("render joined notice: %v", err)
		return true, nil
	}
	s.sendToUser(*author, text, nil)
	return true, nil
}

// Unjoin removes a user from an event. Idempotent: a no-op if not joined.
func (s *EventService) Unjoin(eventID, userID int64) (bool, error) {
	return s.repo.RemoveParticipant(eventID, userID)
}

// EditField mutates a single event field and notifies current participants
// with the old and new values. The update commits before any notification.
func (s *EventService) EditField(eventID int64, field EventField, value string) (Event, error) {
	ev, err := s.repo.GetEvent(eventID)
	if err != nil {
		return Event{}, err
	}
	old := field.valueOf(*ev)
	if err := s.repo.UpdateEventField(eventID, field, value); err != nil {
		return Event{}, err
	}
	updated := *ev
	field.apply(&updated, value)

	p := ChangeNoticeParams{Event: updated, Date: dotDate(updated.Date), Old: old, New: value}
	var text string
	var terr error
	switch field {
	case FieldTime:
		text, terr = s.tpls.TimeChangedNotice(p)
	case FieldLocation:
		text, terr = s.tpls.LocationChangedNotice(p)
	case FieldAdditionalInfo:
		text, terr = s.tpls.InfoChangedNotice(p)
	}
	if terr != nil {
		log.Printf("render change notice: %v", terr)
		return updated, nil
	}
	s.notifyParticipants(updated, text)
	return updated, nil
}

// notifyParticipants fans a notification out to every participant, best
// effort, with an info affordance back to the event.
func (s *EventService) notifyParticipants(ev Event, text string) {
	participants, err := s.repo.Participants(ev.ID)
	if err != nil {
		log.Printf("event %d: list participants: %v", ev.ID, err)
		return
	}
	kb := infoKeyboard(s.cfg, ev.ID)
	for _, p := range participants {
		s.sendToUser(p, text, kb)
	}
}

// EventCard renders the formatted card for an event.
func (s *EventService) EventCard(ev Event) (string, error) {
	var authorName string
	author, err := s.repo.GetUserByID(ev.AuthorID)
	if err == nil {
		authorName = author.DisplayName()
	}
	participants, err := s.repo.Participants(ev.ID)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		names = append(names, p.DisplayName())
	}
	return s.tpls.EventCard(EventCardParams{
		Title:        humanDate(ev.Date),
		Event:        ev,
		AuthorName:   authorName,
		Participants: strings.Join(names, ", "),
	})
}

// PublishEvent broadcasts a single event card to the channel with both
// join and unjoin affordances. Publishing is non-idempotent by design.
func (s *EventService) PublishEvent(eventID int64) error {
	ev, err := s.repo.GetEvent(eventID)
	if err != nil {
		return err
	}
	card, err := s.EventCard(*ev)
	if err != nil {
		return err
	}
	return s.send(s.cfg.ChannelID, card, toggleKeyboard(s.cfg, ev.ID, false, false, false))
}

// PublishToday broadcasts a digest of today's events to the channel: a
// header, then one card per event, the last card carrying a link back to the
// bot. With no events a single "create your own" card goes out instead.
// Card delivery is sequential and best effort. Returns the event count.
func (s *EventService) PublishToday() (int, error) {
	today := s.Today()
	events, err := s.repo.EventsBetween(today, addDays(today, 1))
	if err != nil {
		return 0, err
	}
	if err := s.send(s.cfg.ChannelID, s.cfg.Messages.EventsForToday, nil); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		kb := botLinkKeyboard(s.cfg.Buttons.Create, s.cfg.BotUsername)
		if err := s.send(s.cfg.ChannelID, s.cfg.Messages.NoEventsChannel, kb); err != nil {
			return 0, err
		}
		return 0, nil
	}
	for i, ev := range events {
		card, err := s.EventCard(ev)
		if err != nil {
			log.Printf("publish event %d: %v", ev.ID, err)
			continue
		}
		var kb *tgbotapi.InlineKeyboardMarkup
		if i == len(events)-1 {
			kb = botLinkKeyboard(s.cfg.Buttons.More, s.cfg.BotUsername)
		}
		if err := s.send(s.cfg.ChannelID, card, kb); err != nil {
			log.Printf("publish event %d: %v", ev.ID, err)
		}
	}
	return len(events), nil
}

// Event returns an event by id.
func (s *EventService) Event(eventID int64) (*Event, error) {
	return s.repo.GetEvent(eventID)
}

// EventsByAuthor lists a user's future authored events.
func (s *EventService) EventsByAuthor(authorID int64) ([]Event, error) {
	return s.repo.EventsByAuthor(authorID, s.Today())
}

// EventsByParticipant lists a user's future joined events.
func (s *EventService) EventsByParticipant(userID int64) ([]Event, error) {
	return s.repo.EventsByParticipant(userID, s.Today())
}

// EventsBetween lists events in the half-open window [from, to).
func (s *EventService) EventsBetween(from, to string) ([]Event, error) {
	return s.repo.EventsBetween(from, to)
}

// EventDates lists the dates that have events within the browse horizon.
func (s *EventService) EventDates(from, to string) ([]string, error) {
	return s.repo.EventDates(from, to)
}
