package main

import (
	"database/sql"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	tpls, err := NewTemplates(cfg.Messages)
	if err != nil {
		log.Fatalf("parse message templates: %v", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	repo := NewSQLiteRepository(db)
	if err := repo.CreateTables(); err != nil {
		log.Fatal(err)
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Authorized on account %s", api.Self.UserName)
	if cfg.BotUsername == "" {
		cfg.BotUsername = api.Self.UserName
	}

	service := NewEventService(repo, api, cfg, tpls)
	engine := NewDialogEngine(cfg, service)
	sessions := NewSessionManager(repo)
	createCal := NewCalendar(time.Now, 12)
	findCal := NewCalendar(time.Now, 6)
	bot := NewBot(api, cfg, repo, sessions, engine, service, createCal, findCal)

	if cfg.HTTPAddr != "" {
		go func() {
			log.Printf("Listening on %s", cfg.HTTPAddr)
			if err := newWebServer(cfg, service, tpls).Run(cfg.HTTPAddr); err != nil {
				log.Fatal(err)
			}
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := api.GetUpdatesChan(u)
	if err != nil {
		log.Fatal(err)
	}
	for update := range updates {
		bot.HandleUpdate(update)
	}
}
