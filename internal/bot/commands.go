package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Command defines a bot command and its Telegram menu description.
type Command struct {
	Name        string // Command name without slash (e.g., "start")
	Description string
}

// botCommands is the single source of truth for the command menu.
var botCommands = []Command{
	{Name: "start", Description: "Start a new listing session"},
	{Name: "end", Description: "End the current session"},
	{Name: "session", Description: "Show current session data"},
	{Name: "back", Description: "Go one step back"},
	{Name: "continue", Description: "Skip to the next item"},
	{Name: "profile", Description: "Show or switch the product profile"},
	{Name: "listings", Description: "Show your recent listings"},
	{Name: "help", Description: "Show available commands"},
	{Name: "version", Description: "Show version information"},
}

// RegisterCommands sets the bot's command menu in Telegram.
// This should be called once at startup.
func RegisterCommands(tg MessageSender) {
	commands := make([]tgbotapi.BotCommand, len(botCommands))
	for i, cmd := range botCommands {
		commands[i] = tgbotapi.BotCommand{
			Command:     cmd.Name,
			Description: cmd.Description,
		}
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	if _, err := tg.Request(config); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
	} else {
		log.Info().Int("count", len(commands)).Msg("registered bot commands")
	}
}
