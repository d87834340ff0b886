package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type inboundFields struct {
	From      string `json:"from" form:"From"`
	MessageID string `json:"message_id" form:"MessageSid"`
}

// inboundOf reads the sender and channel message id from either a Twilio form
// post or a JSON message body.
func inboundOf(c *fiber.Ctx) inboundFields {
	var f inboundFields
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEApplicationForm) {
		f.From = c.FormValue("From")
		f.MessageID = c.FormValue("MessageSid")
	} else {
		_ = c.BodyParser(&f)
	}
	f.From = strings.TrimPrefix(strings.TrimSpace(f.From), "whatsapp:")
	f.MessageID = strings.TrimSpace(f.MessageID)
	return f
}
