package middleware

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/logging"
)

func setupDedupeApp(t *testing.T) (*fiber.App, *int32, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls int32
	app := fiber.New()
	app.Use(Dedupe(cache, time.Minute, logging.Discard()))
	app.Post("/webhook", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"handled": n})
	})
	return app, &calls, mr
}

func twilioForm(from, sid, body string) *strings.Reader {
	v := url.Values{}
	v.Set("From", from)
	v.Set("MessageSid", sid)
	v.Set("Body", body)
	return strings.NewReader(v.Encode())
}

func postForm(t *testing.T, app *fiber.App, from, sid string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/webhook", twilioForm(from, sid, "balance"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestDedupeReplaysRedeliveredMessage(t *testing.T) {
	app, calls, _ := setupDedupeApp(t)

	status, first := postForm(t, app, "whatsapp:+15551234567", "SM123")
	require.Equal(t, fiber.StatusOK, status)

	status, second := postForm(t, app, "whatsapp:+15551234567", "SM123")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestDedupeDistinctMessagesBothHandled(t *testing.T) {
	app, calls, _ := setupDedupeApp(t)

	postForm(t, app, "+15551234567", "SM1")
	postForm(t, app, "+15551234567", "SM2")
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestDedupePassesThroughWithoutMessageID(t *testing.T) {
	app, calls, _ := setupDedupeApp(t)

	postForm(t, app, "+15551234567", "")
	postForm(t, app, "+15551234567", "")
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestDedupeReadsJSONMessageID(t *testing.T) {
	app, calls, _ := setupDedupeApp(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/webhook",
			strings.NewReader(`{"from":"+15551234567","body":"hi","message_id":"m-1"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestDedupeInProgressConflict(t *testing.T) {
	app, calls, mr := setupDedupeApp(t)
	require.NoError(t, mr.Set(dedupePrefix+"SM9", inProgressMarker))

	status, _ := postForm(t, app, "+15551234567", "SM9")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.EqualValues(t, 0, atomic.LoadInt32(calls))
}

func TestDedupeFailsOpenWhenRedisDown(t *testing.T) {
	app, calls, mr := setupDedupeApp(t)
	mr.Close()

	status, _ := postForm(t, app, "+15551234567", "SM5")
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}
