package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// DialogState represents the current state of a user's dialog with the bot
type DialogState int

const (
	StateNone DialogState = iota
	StateChooseDate
	StateChooseTime
	StateChooseType
	StateChooseLocation
	StateChooseDistance
	StateChoosePace
	StateEnterAdditionalInfo
	StateFindEventsOnDate
	StateSaveNewTime
	StateSaveNewLocation
	StateSaveNewInfo
)

var stateNames = map[DialogState]string{
	StateChooseDate:          "choose_date",
	StateChooseTime:          "choose_time",
	StateChooseType:          "choose_type",
	StateChooseLocation:      "choose_location",
	StateChooseDistance:      "choose_distance",
	StateChoosePace:          "choose_pace",
	StateEnterAdditionalInfo: "enter_additional_info",
	StateFindEventsOnDate:    "find_events_on_date",
	StateSaveNewTime:         "save_new_time",
	StateSaveNewLocation:     "save_new_location",
	StateSaveNewInfo:         "save_new_info",
}

func (s DialogState) String() string {
	return stateNames[s]
}

// parseDialogState maps a stored state name back to its enum value.
// Unknown names resolve to StateNone.
func parseDialogState(name string) DialogState {
	for state, n := range stateNames {
		if n == name {
			return state
		}
	}
	return StateNone
}

var (
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRegex = regexp.MustCompile(`^\d{2}:\d{2}(\s?-\s?\d{2}:\d{2})?$`)
)

// ValidateDate checks the YYYY-MM-DD format and that the date exists.
func ValidateDate(date string) bool {
	if !dateRegex.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// ValidateTime checks the HH:MM or HH:MM-HH:MM format and the clock ranges.
func ValidateTime(t string) bool {
	if !timeRegex.MatchString(t) {
		return false
	}
	for _, part := range strings.Split(strings.ReplaceAll(t, " ", ""), "-") {
		hh, _ := strconv.Atoi(part[:2])
		mm, _ := strconv.Atoi(part[3:5])
		if hh > 23 || mm > 59 {
			return false
		}
	}
	return true
}

// turnStep describes one dialogue state: the draft attribute it captures, an
// optional validator, the next state, the outbound prompt (with optional
// keyboard), and an optional side effect run before the prompt. An action
// returning suppress=true has already replied on its own.
type turnStep struct {
	next     DialogState
	prompt   string
	keyboard *tgbotapi.InlineKeyboardMarkup
	assign   func(*EventDraft, string)
	validate func(string) bool
	action   func(bag *StateBag, chatID int64, input string) (suppress bool, err error)
}

// DialogEngine drives the multi-step creation flow and the single-step edit
// flows. One engine serves all users; per-user position lives in the StateBag.
type DialogEngine struct {
	cfg   *Config
	svc   *EventService
	steps map[DialogState]turnStep
}

// NewDialogEngine builds the transition table.
func NewDialogEngine(cfg *Config, svc *EventService) *DialogEngine {
	e := &DialogEngine{cfg: cfg, svc: svc}
	m := cfg.Messages
	e.steps = map[DialogState]turnStep{
		StateChooseDate: {
			next:     StateChooseTime,
			prompt:   m.ChooseTime,
			assign:   func(d *EventDraft, v string) { d.Date = v },
			validate: ValidateDate,
		},
		StateChooseTime: {
			next:     StateChooseType,
			prompt:   m.ChooseType,
			keyboard: categoryKeyboard(cfg),
			assign:   func(d *EventDraft, v string) { d.Time = v },
			validate: ValidateTime,
		},
		StateChooseType: {
			next:   StateChooseLocation,
			prompt: m.ChooseLocation,
			assign: func(d *EventDraft, v string) { d.Type = v },
		},
		StateChooseLocation: {
			next:   StateChooseDistance,
			prompt: m.ChooseDistance,
			assign: func(d *EventDraft, v string) { d.Location = v },
		},
		StateChooseDistance: {
			next:   StateChoosePace,
			prompt: m.ChoosePace,
			assign: func(d *EventDraft, v string) { d.Distance = v },
		},
		StateChoosePace: {
			next:   StateEnterAdditionalInfo,
			prompt: m.EnterAdditionalInfo,
			assign: func(d *EventDraft, v string) { d.Pace = v },
		},
		StateEnterAdditionalInfo: {
			next:   StateNone,
			prompt: m.EventCreated,
			assign: func(d *EventDraft, v string) { d.AdditionalInfo = v },
			action: e.createEvent,
		},
		StateSaveNewTime: {
			next:     StateNone,
			prompt:   m.TimeSaved,
			validate: ValidateTime,
			action:   e.saveField(FieldTime),
		},
		StateSaveNewLocation: {
			next:   StateNone,
			prompt: m.LocationSaved,
			action: e.saveField(FieldLocation),
		},
		StateSaveNewInfo: {
			next:   StateNone,
			prompt: m.InfoSaved,
			action: e.saveField(FieldAdditionalInfo),
		},
	}
	return e
}

// HandleText processes free text for whatever state the bag is in. Group
// chats never reach here; the caller drops non-private text outright.
func (e *DialogEngine) HandleText(bag *StateBag, chatID int64, text string) error {
	state := parseDialogState(bag.State)
	step, ok := e.steps[state]
	if !ok {
		return e.svc.send(chatID, e.cfg.Messages.UnknownCommand, nil)
	}
	if step.validate != nil && !step.validate(text) {
		return e.svc.send(chatID, e.cfg.Messages.InvalidInput, nil)
	}
	if step.assign != nil {
		step.assign(bag.draft(), text)
	}

	next := step.next
	prompt := step.prompt
	keyboard := step.keyboard
	if state == StateChooseLocation && e.cfg.IsStatic(bag.draft().Type) {
		// Distance and pace are meaningless for static categories.
		next = StateEnterAdditionalInfo
		prompt = e.cfg.Messages.EnterAdditionalInfo
		keyboard = nil
	}
	bag.State = next.String()

	if step.action != nil {
		suppress, err := step.action(bag, chatID, text)
		if err != nil {
			return err
		}
		if suppress {
			return nil
		}
	}
	return e.svc.send(chatID, prompt, keyboard)
}

// HandleCategory processes a category selection arriving as a discrete
// affordance instead of free text.
func (e *DialogEngine) HandleCategory(bag *StateBag, chatID int64, category string) error {
	bag.draft().Type = category
	bag.State = StateChooseLocation.String()
	return e.svc.send(chatID, e.cfg.Messages.ChooseLocation, nil)
}

// HandleDateChosen injects a date-picker result as if the user had typed it
// in the choose_date state.
func (e *DialogEngine) HandleDateChosen(bag *StateBag, chatID int64, date string) error {
	bag.draft().Date = date
	bag.State = StateChooseTime.String()
	return e.svc.send(chatID, e.cfg.Messages.ChooseTime, nil)
}

// StartEdit begins a single-field edit flow for an event, prompting with the
// current value.
func (e *DialogEngine) StartEdit(bag *StateBag, chatID int64, ev Event, field EventField) error {
	p := EditPromptParams{Event: ev}
	var prompt string
	var err error
	var state DialogState
	switch field {
	case FieldTime:
		prompt, err = e.svc.tpls.EditTimePrompt(p)
		state = StateSaveNewTime
	case FieldLocation:
		prompt, err = e.svc.tpls.EditLocationPrompt(p)
		state = StateSaveNewLocation
	case FieldAdditionalInfo:
		prompt, err = e.svc.tpls.EditInfoPrompt(p)
		state = StateSaveNewInfo
	default:
		return fmt.Errorf("unknown event field %d", field)
	}
	if err != nil {
		return err
	}
	bag.EditEventID = ev.ID
	bag.State = state.String()
	return e.svc.send(chatID, prompt, nil)
}

// createEvent is the terminal creation action: it persists the draft and
// replies with a confirmation carrying a publish affordance.
func (e *DialogEngine) createEvent(bag *StateBag, chatID int64, _ string) (bool, error) {
	if bag.NewEvent == nil {
		return false, fmt.Errorf("no draft in progress")
	}
	ev, err := e.svc.CreateEvent(*bag.NewEvent)
	if err != nil {
		return false, err
	}
	bag.NewEvent.ID = ev.ID
	if err := e.svc.send(chatID, e.cfg.Messages.EventCreated, publishKeyboard(e.cfg, ev.ID)); err != nil {
		return false, err
	}
	return true, nil
}

// saveField builds the terminal action of a single-field edit flow.
func (e *DialogEngine) saveField(field EventField) func(*StateBag, int64, string) (bool, error) {
	return func(bag *StateBag, chatID int64, input string) (bool, error) {
		eventID := bag.EditEventID
		bag.EditEventID = 0
		_, err := e.svc.EditField(eventID, field, input)
		if errors.Is(err, ErrNotFound) {
			// The event vanished mid-edit; answer neutrally.
			return true, e.svc.send(chatID, e.cfg.Messages.UnknownCommand, nil)
		}
		if err != nil {
			return false, err
		}
		return false, nil
	}
}
