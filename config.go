package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Messages holds every outbound text, loaded from the YAML config file.
// Fields ending in Notification/Prompt/Success plus EventInfo are templates,
// parsed at startup by NewTemplates.
type Messages struct {
	Start               string `yaml:"start"`
	ChooseDate          string `yaml:"choose_date"`
	ChooseTime          string `yaml:"choose_time"`
	ChooseType          string `yaml:"choose_type"`
	ChooseLocation      string `yaml:"choose_location"`
	ChooseDistance      string `yaml:"choose_distance"`
	ChoosePace          string `yaml:"choose_pace"`
	EnterAdditionalInfo string `yaml:"enter_additional_info"`
	EventCreated        string `yaml:"event_created"`
	InvalidInput        string `yaml:"invalid_input"`
	UnknownCommand      string `yaml:"unknown_command"`
	AccessDenied        string `yaml:"access_denied"`
	ChooseCategory      string `yaml:"choose_category"`
	IAmAuthor           string `yaml:"i_m_author"`
	IAmParticipant      string `yaml:"i_m_participant"`
	ShowEvents          string `yaml:"show_events"`
	NoEvents            string `yaml:"no_events"`
	NoEventsToday       string `yaml:"no_events_today"`
	NoEventsTomorrow    string `yaml:"no_events_tomorrow"`
	NoEventsThisWeek    string `yaml:"no_events_this_week"`
	NoUpcomingEvents    string `yaml:"no_upcoming_events"`
	EventDeleted        string `yaml:"event_deleted"`
	EventPublished      string `yaml:"event_published"`
	EventJoined         string `yaml:"event_joined"`
	EventUnjoined       string `yaml:"event_unjoined"`
	TimeSaved           string `yaml:"time_saved"`
	LocationSaved       string `yaml:"location_saved"`
	InfoSaved           string `yaml:"info_saved"`
	EditMessage         string `yaml:"edit_message"`
	EventsForToday      string `yaml:"events_for_today"`
	NoEventsChannel     string `yaml:"no_events_channel"`
	PublishNoEvents     string `yaml:"publish_no_events"`
	PublishError        string `yaml:"publish_error"`
	WebNoEvents         string `yaml:"web_no_events"`
	WebPublishError     string `yaml:"web_publish_error"`
	QRCaption           string `yaml:"qr_caption"`

	EventInfo                   string `yaml:"event_info"`
	EventDeletedNotification    string `yaml:"event_deleted_notification"`
	JoinedNotification          string `yaml:"joined_notification"`
	TimeChangedNotification     string `yaml:"time_changed_notification"`
	LocationChangedNotification string `yaml:"location_changed_notification"`
	InfoChangedNotification     string `yaml:"info_changed_notification"`
	EditTimePrompt              string `yaml:"edit_time_prompt"`
	EditLocationPrompt          string `yaml:"edit_location_prompt"`
	EditInfoPrompt              string `yaml:"edit_info_prompt"`
	PublishSuccess              string `yaml:"publish_success"`
	WebPublishSuccess           string `yaml:"web_publish_success"`
}

// ButtonLabels holds the text on inline buttons.
type ButtonLabels struct {
	Join         string `yaml:"join"`
	Unjoin       string `yaml:"unjoin"`
	Edit         string `yaml:"edit"`
	Delete       string `yaml:"delete"`
	Publish      string `yaml:"publish"`
	Info         string `yaml:"info"`
	Create       string `yaml:"create"`
	More         string `yaml:"more"`
	EditTime     string `yaml:"edit_time"`
	EditPlace    string `yaml:"edit_place"`
	EditInfo     string `yaml:"edit_info"`
	FindToday    string `yaml:"find_today"`
	FindTomorrow string `yaml:"find_tomorrow"`
	FindWeek     string `yaml:"find_week"`
	FindAll      string `yaml:"find_all"`
	FindDate     string `yaml:"find_date"`
}

// Config represents the bot configuration. Secrets and addresses come from
// the environment; categories, labels and message texts from the YAML file.
type Config struct {
	BotToken    string
	BotUsername string
	AdminIDs    []string
	ChannelID   int64
	DBPath      string
	HTTPAddr    string

	EventTypes   []string     `yaml:"event_types"`
	StaticEvents []string     `yaml:"static_events"`
	Buttons      ButtonLabels `yaml:"buttons"`
	Messages     Messages     `yaml:"messages"`
}

// LoadConfig loads configuration from the .env file, environment variables
// and the YAML messages file.
func LoadConfig() (*Config, error) {
	if err := loadEnvFile(".env"); err == nil {
		log.Println("Loaded .env file")
	}

	path := os.Getenv("MESSAGES_FILE")
	if path == "" {
		path = "config/messages.yml"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	config := &Config{}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("parse messages file: %w", err)
	}

	config.BotToken = os.Getenv("BOT_TOKEN")
	config.BotUsername = os.Getenv("BOT_USERNAME")
	if adminIDs := os.Getenv("ADMIN_IDS"); adminIDs != "" {
		config.AdminIDs = parseCommaSeparated(adminIDs)
	}
	if channel := os.Getenv("CHANNEL_ID"); channel != "" {
		config.ChannelID, err = strconv.ParseInt(channel, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CHANNEL_ID: %w", err)
		}
	}
	config.DBPath = os.Getenv("DB_PATH")
	if config.DBPath == "" {
		config.DBPath = "./bot.db"
	}
	config.HTTPAddr = os.Getenv("HTTP_ADDR")

	if config.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if len(c.EventTypes) == 0 {
		return fmt.Errorf("event_types must not be empty")
	}
	for _, st := range c.StaticEvents {
		if !c.IsEventType(st) {
			return fmt.Errorf("static event %q is not a configured event type", st)
		}
	}
	return nil
}

// IsAdmin checks whether a telegram id is in the admin allowlist.
func (c *Config) IsAdmin(telegramID string) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// IsEventType checks whether a category is configured.
func (c *Config) IsEventType(eventType string) bool {
	for _, et := range c.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// IsStatic checks whether a category skips the distance and pace steps.
func (c *Config) IsStatic(eventType string) bool {
	for _, st := range c.StaticEvents {
		if st == eventType {
			return true
		}
	}
	return false
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// parseCommaSeparated parses a comma-separated string into a slice
func parseCommaSeparated(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
