package main

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// commandHandler is a bound command handler.
type commandHandler func(msg *tgbotapi.Message) error

// requireAdmin wraps a command handler with an admin allowlist check.
func (b *Bot) requireAdmin(handler commandHandler) commandHandler {
	return func(msg *tgbotapi.Message) error {
		if !b.cfg.IsAdmin(strconv.Itoa(msg.From.ID)) {
			return b.service.send(msg.Chat.ID, b.cfg.Messages.AccessDenied, nil)
		}
		return handler(msg)
	}
}
