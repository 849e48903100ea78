package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	ChatID int64

	sender telegramSender
}

func NewTelegramGateway(token, chatID string) (*TelegramGateway, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{Bot: bot, ChatID: id, sender: bot}, nil
}

func parseChatID(chatID string) (int64, error) {
	var id int64
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return 0, fmt.Errorf("invalid chat ID: %s", chatID)
	}
	return id, nil
}

func (tg *TelegramGateway) Name() string {
	return "telegram"
}

func (tg *TelegramGateway) Notify(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(tg.ChatID, text)
	msg.ParseMode = "Markdown"
	_, err := tg.sender.Send(msg)
	return err
}

// Listen answers commands sent to the bot until ctx ends. Only messages
// from the configured chat are handled.
func (tg *TelegramGateway) Listen(ctx context.Context, handle CommandHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	defer tg.Bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != tg.ChatID {
				continue
			}
			text := strings.TrimSpace(update.Message.Text)
			if !strings.HasPrefix(text, "/") {
				continue
			}

			log.Printf("[telegram] %s", text)
			reply := handle(ctx, text)
			if reply == "" {
				continue
			}
			if _, err := tg.sender.Send(tgbotapi.NewMessage(tg.ChatID, reply)); err != nil {
				log.Printf("[telegram] reply failed: %v", err)
			}
		}
	}
}
