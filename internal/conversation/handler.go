package conversation

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the router over HTTP.
type Handler struct {
	router *Router
}

func NewHandler(router *Router) *Handler {
	return &Handler{router: router}
}

type twimlMessage struct {
	Body string `xml:",chardata"`
}

type twimlResponse struct {
	XMLName  xml.Name       `xml:"Response"`
	Messages []twimlMessage `xml:"Message"`
}

// TwilioWebhook accepts Twilio's form-encoded inbound message and answers with TwiML.
func (h *Handler) TwilioWebhook(c *fiber.Ctx) error {
	msg := InboundMessage{
		From:      strings.TrimPrefix(c.FormValue("From"), "whatsapp:"),
		Body:      c.FormValue("Body"),
		MessageID: c.FormValue("MessageSid"),
	}
	if msg.From == "" {
		return fiber.NewError(http.StatusBadRequest, "From is required")
	}

	replies := h.router.HandleInbound(c.UserContext(), msg)
	resp := twimlResponse{Messages: make([]twimlMessage, 0, len(replies))}
	for _, r := range replies {
		resp.Messages = append(resp.Messages, twimlMessage{Body: r.Body})
	}
	body, err := xml.Marshal(resp)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to render reply")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextXMLCharsetUTF8)
	return c.Send(append([]byte(xml.Header), body...))
}

// Messages accepts a JSON inbound message and returns the replies.
func (h *Handler) Messages(c *fiber.Ctx) error {
	var msg InboundMessage
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(msg.From) == "" {
		return fiber.NewError(http.StatusBadRequest, "from is required")
	}
	replies := h.router.HandleInbound(c.UserContext(), msg)
	return c.JSON(fiber.Map{"messages": replies})
}
