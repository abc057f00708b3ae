package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// TelegramService handles sending payment notifications to Telegram.
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

// SendMessage sends a message to specified chat.
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

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// PaymentNotification carries payment outcome data for Telegram messages.
type PaymentNotification struct {
	AttemptID    string
	OrderNumber  string
	Provider     string
	Direction    string
	Amount       string
	Currency     string
	Counterparty string
	Receipt      string
	Reason       string
}

// NotifyPaymentSuccess reports a settled payment to the admin chat.
func (s *TelegramService) NotifyPaymentSuccess(p PaymentNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>Attempt:</b> %s
<b>Order:</b> %s
<b>Provider:</b> %s (%s)
<b>Amount:</b> %s %s
<b>Counterparty:</b> %s
<b>Receipt:</b> %s`,
		p.AttemptID,
		orDash(p.OrderNumber),
		p.Provider,
		p.Direction,
		p.Amount,
		p.Currency,
		orDash(p.Counterparty),
		orDash(p.Receipt),
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// NotifyPaymentFailure reports a failed or expired payment.
func (s *TelegramService) NotifyPaymentFailure(p PaymentNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	reason := p.Reason
	if reason == "" {
		reason = "payment could not be processed"
	}

	message := fmt.Sprintf(`<b>❌ PAYMENT NOT COMPLETED</b>
<b>Attempt:</b> %s
<b>Order:</b> %s
<b>Provider:</b> %s (%s)
<b>Amount:</b> %s %s
<b>Reason:</b> %s`,
		p.AttemptID,
		orDash(p.OrderNumber),
		p.Provider,
		p.Direction,
		p.Amount,
		p.Currency,
		reason,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
