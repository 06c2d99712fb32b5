package main

// User is a person known to the bot. Rows are created lazily on first
// interaction; telegram_id is the stable external identifier.
type User struct {
	ID         int64
	TelegramID string
	Username   string // display name shown in event cards
	Nickname   string // telegram @handle, may be empty
	Blocked    bool   // the user blocked the bot, skip all sends
}

// DisplayName returns the handle if the user has one, the display name
// otherwise.
func (u User) DisplayName() string {
	if u.Nickname != "" {
		return "@" + u.Nickname
	}
	return u.Username
}

// Event is a scheduled activity.
type Event struct {
	ID             int64
	Date           string // YYYY-MM-DD
	Time           string // HH:MM or HH:MM-HH:MM
	Type           string
	Location       string
	Distance       string
	Pace           string
	AdditionalInfo string
	AuthorID       int64
}

// EventDraft accumulates event fields across dialogue turns until the
// terminal creation step persists it.
type EventDraft struct {
	ID             int64  `json:"id,omitempty"`
	Date           string `json:"date,omitempty"`
	Time           string `json:"time,omitempty"`
	Type           string `json:"type,omitempty"`
	Location       string `json:"location,omitempty"`
	Distance       string `json:"distance,omitempty"`
	Pace           string `json:"pace,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
	AuthorID       int64  `json:"author_id,omitempty"`
}

// StateBag is the per-user conversation state. It is loaded at the start of
// every interaction and fully overwritten at the end.
type StateBag struct {
	State        string      `json:"state,omitempty"`
	NewEvent     *EventDraft `json:"new_event,omitempty"`
	EditEventID  int64       `json:"edit_event_id,omitempty"`
	CalendarType string      `json:"calendar_type,omitempty"`
}

// draft returns the in-progress event draft, allocating it on first use.
func (b *StateBag) draft() *EventDraft {
	if b.NewEvent == nil {
		b.NewEvent = &EventDraft{}
	}
	return b.NewEvent
}
