package main

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced row no longer exists.
var ErrNotFound = errors.New("not found")

// EventField identifies an event attribute that can be edited after creation.
type EventField int

const (
	FieldTime EventField = iota
	FieldLocation
	FieldAdditionalInfo
)

func (f EventField) column() string {
	switch f {
	case FieldTime:
		return "time"
	case FieldLocation:
		return "location"
	case FieldAdditionalInfo:
		return "additional_info"
	}
	return ""
}

func (f EventField) valueOf(ev Event) string {
	switch f {
	case FieldTime:
		return ev.Time
	case FieldLocation:
		return ev.Location
	case FieldAdditionalInfo:
		return ev.AdditionalInfo
	}
	return ""
}

func (f EventField) apply(ev *Event, value string) {
	switch f {
	case FieldTime:
		ev.Time = value
	case FieldLocation:
		ev.Location = value
	case FieldAdditionalInfo:
		ev.AdditionalInfo = value
	}
}

// Repository defines the interface for database operations
type Repository interface {
	CreateTables() error

	GetOrCreateUser(telegramID, username, nickname string) (User, bool, error)
	GetUserByID(id int64) (*User, error)
	UpdateUserNames(id int64, username, nickname string) error
	MarkUserBlocked(telegramID string) error

	CreateEvent(draft EventDraft) (Event, error)
	GetEvent(id int64) (*Event, error)
	UpdateEventField(id int64, field EventField, value string) error
	DeleteEvent(id int64) error
	EventsByAuthor(authorID int64, from string) ([]Event, error)
	EventsByParticipant(userID int64, from string) ([]Event, error)
	EventsBetween(from, to string) ([]Event, error)
	EventDates(from, to string) ([]string, error)

	AddParticipant(eventID, userID int64) (bool, error)
	RemoveParticipant(eventID, userID int64) (bool, error)
	IsParticipant(eventID, userID int64) (bool, error)
	Participants(eventID int64) ([]User, error)

	LoadSession(telegramID string) (string, error)
	SaveSession(telegramID, blob string) error
}

// SQLiteRepository implements the Repository interface
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLiteRepository
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateTables creates the users, events, participants and sessions tables.
// Dates are stored as YYYY-MM-DD text so lexicographic order is calendar order.
func (r *SQLiteRepository) CreateTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id TEXT NOT NULL UNIQUE,
			username TEXT,
			nickname TEXT,
			blocked INTEGER DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			type TEXT NOT NULL,
			location TEXT NOT NULL,
			distance TEXT,
			pace TEXT,
			additional_info TEXT,
			author_id INTEGER NOT NULL REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS participants (
			user_id INTEGER NOT NULL REFERENCES users(id),
			event_id INTEGER NOT NULL REFERENCES events(id),
			PRIMARY KEY (user_id, event_id)
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id TEXT NOT NULL UNIQUE,
			json TEXT
		);`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateUser looks up a user by telegram id, inserting a new row on
// first contact. The second return value reports whether a row was created.
func (r *SQLiteRepository) GetOrCreateUser(telegramID, username, nickname string) (User, bool, error) {
	existing, err := r.userByTelegramID(telegramID)
	if err == nil {
		return *existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}
	res, err := r.db.Exec("INSERT INTO users (telegram_id, username, nickname) VALUES (?, ?, ?)",
		telegramID, username, nickname)
	if err != nil {
		return User{}, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, false, err
	}
	return User{ID: id, TelegramID: telegramID, Username: username, Nickname: nickname}, true, nil
}

func (r *SQLiteRepository) userByTelegramID(telegramID string) (*User, error) {
	row := r.db.QueryRow("SELECT id, telegram_id, username, nickname, blocked FROM users WHERE telegram_id = ?", telegramID)
	return scanUser(row)
}

// GetUserByID returns a user by internal id or ErrNotFound.
func (r *SQLiteRepository) GetUserByID(id int64) (*User, error) {
	row := r.db.QueryRow("SELECT id, telegram_id, username, nickname, blocked FROM users WHERE id = ?", id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var blocked int
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Nickname, &blocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Blocked = blocked == 1
	return &u, nil
}

// UpdateUserNames refreshes the display name and handle for a user.
func (r *SQLiteRepository) UpdateUserNames(id int64, username, nickname string) error {
	_, err := r.db.Exec("UPDATE users SET username = ?, nickname = ? WHERE id = ?", username, nickname, id)
	return err
}

// MarkUserBlocked flags a user so notifications and broadcasts skip them.
func (r *SQLiteRepository) MarkUserBlocked(telegramID string) error {
	_, err := r.db.Exec("UPDATE users SET blocked = 1 WHERE telegram_id = ?", telegramID)
	return err
}

// CreateEvent inserts a new event row from a completed draft.
func (r *SQLiteRepository) CreateEvent(draft EventDraft) (Event, error) {
	res, err := r.db.Exec(
		"INSERT INTO events (date, time, type, location, distance, pace, additional_info, author_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		draft.Date, draft.Time, draft.Type, draft.Location, draft.Distance, draft.Pace, draft.AdditionalInfo, draft.AuthorID)
	if err != nil {
		return Event{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:             id,
		Date:           draft.Date,
		Time:           draft.Time,
		Type:           draft.Type,
		Location:       draft.Location,
		Distance:       draft.Distance,
		Pace:           draft.Pace,
		AdditionalInfo: draft.AdditionalInfo,
		AuthorID:       draft.AuthorID,
	}, nil
}

const eventColumns = "id, date, time, type, location, distance, pace, additional_info, author_id"

// GetEvent returns an event by id or ErrNotFound.
func (r *SQLiteRepository) GetEvent(id int64) (*Event, error) {
	row := r.db.QueryRow("SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	var ev Event
	var distance, pace, info sql.NullString
	err := row.Scan(&ev.ID, &ev.Date, &ev.Time, &ev.Type, &ev.Location, &distance, &pace, &info, &ev.AuthorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ev.Distance = distance.String
	ev.Pace = pace.String
	ev.AdditionalInfo = info.String
	return &ev, nil
}

// UpdateEventField sets a single editable column on an event.
func (r *SQLiteRepository) UpdateEventField(id int64, field EventField, value string) error {
	col := field.column()
	if col == "" {
		return fmt.Errorf("unknown event field %d", field)
	}
	res, err := r.db.Exec("UPDATE events SET "+col+" = ? WHERE id = ?", value, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEvent removes an event and its participation rows in one transaction.
func (r *SQLiteRepository) DeleteEvent(id int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM participants WHERE event_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// EventsByAuthor lists events authored by a user with date >= from,
// ascending by date then time.
func (r *SQLiteRepository) EventsByAuthor(authorID int64, from string) ([]Event, error) {
	rows, err := r.db.Query(
		"SELECT "+eventColumns+" FROM events WHERE author_id = ? AND date >= ? ORDER BY date ASC, time ASC",
		authorID, from)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsByParticipant lists events a user has joined with date >= from.
func (r *SQLiteRepository) EventsByParticipant(userID int64, from string) ([]Event, error) {
	rows, err := r.db.Query(
		`SELECT e.id, e.date, e.time, e.type, e.location, e.distance, e.pace, e.additional_info, e.author_id
		 FROM events e
		 JOIN participants p ON p.event_id = e.id
		 WHERE p.user_id = ? AND e.date >= ?
		 ORDER BY e.date ASC, e.time ASC`,
		userID, from)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsBetween lists events in the half-open window [from, to), ascending.
// An empty to means no upper bound.
func (r *SQLiteRepository) EventsBetween(from, to string) ([]Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE date >= ?"
	args := []interface{}{from}
	if to != "" {
		query += " AND date < ?"
		args = append(args, to)
	}
	query += " ORDER BY date ASC, time ASC"
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventDates lists the distinct dates in [from, to) that have events.
func (r *SQLiteRepository) EventDates(from, to string) ([]string, error) {
	rows, err := r.db.Query(
		"SELECT DISTINCT date FROM events WHERE date >= ? AND date < ? ORDER BY date ASC", from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var ev Event
		var distance, pace, info sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Date, &ev.Time, &ev.Type, &ev.Location, &distance, &pace, &info, &ev.AuthorID); err != nil {
			return nil, err
		}
		ev.Distance = distance.String
		ev.Pace = pace.String
		ev.AdditionalInfo = info.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AddParticipant joins a user to an event. The insert is idempotent: a
// duplicate tap changes nothing and reports false.
func (r *SQLiteRepository) AddParticipant(eventID, userID int64) (bool, error) {
	res, err := r.db.Exec("INSERT OR IGNORE INTO participants (user_id, event_id) VALUES (?, ?)", userID, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveParticipant removes a user from an event; a no-op if absent.
func (r *SQLiteRepository) RemoveParticipant(eventID, userID int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM participants WHERE user_id = ? AND event_id = ?", userID, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsParticipant reports whether the user has joined the event.
func (r *SQLiteRepository) IsParticipant(eventID, userID int64) (bool, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM participants WHERE user_id = ? AND event_id = ?", userID, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Participants lists the users joined to an event.
func (r *SQLiteRepository) Participants(eventID int64) ([]User, error) {
	rows, err := r.db.Query(
		`SELECT u.id, u.telegram_id, u.username, u.nickname, u.blocked
		 FROM users u
		 JOIN participants p ON p.user_id = u.id
		 WHERE p.event_id = ?
		 ORDER BY u.id ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		var blocked int
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Nickname, &blocked); err != nil {
			return nil, err
		}
		u.Blocked = blocked == 1
		users = append(users, u)
	}
	return users, rows.Err()
}

// LoadSession returns the stored session blob or ErrNotFound.
func (r *SQLiteRepository) LoadSession(telegramID string) (string, error) {
	var blob sql.NullString
	err := r.db.QueryRow("SELECT json FROM sessions WHERE telegram_id = ?", telegramID).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return blob.String, nil
}

// SaveSession stores the session blob, replacing any previous value.
func (r *SQLiteRepository) SaveSession(telegramID, blob string) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (telegram_id, json) VALUES (?, ?)
		 ON CONFLICT(telegram_id) DO UPDATE SET json = excluded.json`,
		telegramID, blob)
	return err
}
