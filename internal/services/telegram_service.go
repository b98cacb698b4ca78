package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/example/skyfare/internal/models"
)

// TelegramService pushes payment notifications to the operations chat.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// NotifyPaymentResult reports one settled payment to the admin chat. The
// payment service calls this once per applied transition.
func (s *TelegramService) NotifyPaymentResult(payment *models.Payment, succeeded bool) {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return
	}

	header := "❌ <b>Payment failed</b>"
	if succeeded {
		header = "✅ <b>Payment received</b>"
	}

	text := fmt.Sprintf(
		"%s\nBooking: <code>%s</code>\nOrder: <code>%d</code>\nTransaction: <code>%d</code>\nAmount: %.2f %s\nMethod: %s",
		header,
		payment.BookingID,
		payment.GatewayOrderID,
		payment.GatewayTransactionID,
		float64(payment.AmountCents)/100,
		payment.Currency,
		payment.PaymentMethod,
	)

	if err := s.SendMessage(s.adminChatID, text); err != nil {
		log.Printf("[Telegram] payment notification failed: %v", err)
	}
}
