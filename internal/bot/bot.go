package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-ebay-bot/internal/conversation"
	"github.com/raine/telegram-ebay-bot/internal/storage"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Conversation applies user events to a conversation session.
type Conversation interface {
	Handle(ctx context.Context, s *conversation.Session, ev conversation.Event) []conversation.Reply
}

// AccessStore holds the user whitelist.
type AccessStore interface {
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]storage.AllowedUser, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg      BotAPI
	state   BotState
	access  AccessStore
	conv    Conversation
	adminID int64

	download func(getFileDirectURL func(string) (string, error), fileID string) ([]byte, error)
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, access AccessStore, conv Conversation, adminID int64) *Bot {
	bot := &Bot{
		tg:       tg,
		access:   access,
		conv:     conv,
		adminID:  adminID,
		download: downloadFileID,
	}
	bot.state = bot.NewBotState()
	return bot
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userId := update.Message.From.ID

	// Check if user is allowed (admin always allowed)
	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if userId != b.adminID {
		allowed, err := b.access.IsUserAllowed(userId)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userId).Msg("whitelist check failed")
			return // Fail closed
		}
		if !allowed {
			return // Silent drop
		}
	}

	session := b.state.getUserSession(userId)

	log.Info().
		Int64("userId", userId).
		Str("text", update.Message.Text).
		Bool("photo", len(update.Message.Photo) > 0).
		Msg("got message")

	msg := SessionMessage{Type: "text", Ctx: ctx, Message: update.Message}
	if len(update.Message.Photo) > 0 || update.Message.Document != nil {
		msg.Type = "photo"
	}
	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage implements MessageHandler.
// Called by the session worker goroutine, so session state needs no locking.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "photo":
		b.handlePhotoMessage(ctx, session, msg.Message)
	case "text":
		b.handleTextMessage(ctx, session, msg.Message)
	}
}

func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	photo, err := b.fetchPhoto(message)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("photo download failed")
		session.reply(MsgDownloadFailed)
		return
	}

	typingCtx, stopTyping := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	replies := b.conv.Handle(ctx, session.conv, conversation.Event{Kind: conversation.EventPhoto, Photo: photo})
	stopTyping()

	session.replyAll(replies)
}

// fetchPhoto downloads the largest size of a photo, or an image sent as a
// file. Non-image documents are passed on without data so the
// conversation can reject them.
func (b *Bot) fetchPhoto(message *tgbotapi.Message) (*conversation.Photo, error) {
	if doc := message.Document; doc != nil {
		if !strings.HasPrefix(doc.MimeType, "image/") {
			return &conversation.Photo{MIMEType: doc.MimeType, Filename: doc.FileName}, nil
		}
		data, err := b.download(b.tg.GetFileDirectURL, doc.FileID)
		if err != nil {
			return nil, err
		}
		return &conversation.Photo{Data: data, MIMEType: doc.MimeType, Filename: doc.FileName}, nil
	}

	// Telegram lists sizes smallest first
	largest := message.Photo[len(message.Photo)-1]
	data, err := b.download(b.tg.GetFileDirectURL, largest.FileID)
	if err != nil {
		return nil, err
	}
	return &conversation.Photo{Data: data, MIMEType: "image/jpeg", Filename: largest.FileUniqueID + ".jpg"}, nil
}

var commandEvents = map[string]conversation.EventKind{
	"/start":    conversation.EventStart,
	"/end":      conversation.EventEnd,
	"/session":  conversation.EventSession,
	"/back":     conversation.EventBack,
	"/continue": conversation.EventContinue,
	"/profile":  conversation.EventProfile,
	"/listings": conversation.EventListings,
	"/help":     conversation.EventHelp,
}

func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	text := message.Text
	if text == "" {
		session.reply(MsgUnsupportedType)
		return
	}
	if !strings.HasPrefix(text, "/") {
		session.replyAll(b.conv.Handle(ctx, session.conv, conversation.Event{Kind: conversation.EventText, Text: text}))
		return
	}
	b.handleCommand(ctx, session, text)
}

func (b *Bot) handleCommand(ctx context.Context, session *UserSession, text string) {
	command, args := parseCommand(text)
	argsStr := strings.Join(args, " ")

	if kind, ok := commandEvents[command]; ok {
		ev := conversation.Event{Kind: kind, Text: argsStr}
		session.replyAll(b.conv.Handle(ctx, session.conv, ev))
		return
	}

	switch command {
	case "/admin":
		b.handleAdminCommand(session, argsStr)
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		session.reply(MsgUnknownCommand, command)
	}
}

// handleAdminCommand handles /admin command with subcommands.
// Only the admin user can use this command (defense in depth check).
func (b *Bot) handleAdminCommand(session *UserSession, args string) {
	if session.userId != b.adminID {
		return // Silent drop for non-admin users
	}

	parts := strings.Fields(args)
	if len(parts) < 2 || parts[0] != "users" {
		session.reply(MsgAdminUsage)
		return
	}
	b.handleAdminUsersCommand(session, parts[1], parts[2:])
}

func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	switch action {
	case "add":
		if len(args) < 1 {
			session.reply(MsgAdminUserAddUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.access.AddAllowedUser(userID, session.userId); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserAdded, userID)

	case "remove":
		if len(args) < 1 {
			session.reply(MsgAdminUserRemoveUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.access.RemoveAllowedUser(userID); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserRemoved, userID)

	case "list":
		users, err := b.access.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminNoUsers)
			return
		}
		var sb strings.Builder
		sb.WriteString(MsgAdminAllowedUsers)
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("- %d (added %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session.reply(sb.String())

	default:
		session.reply(MsgAdminUsage)
	}
}
