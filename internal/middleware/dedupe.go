package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/chatpay/chatpay/internal/metrics"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	dedupePrefix         = "inbound:v1:"
	inProgressMarker     = "__in_progress__"
	cacheOpTimeout       = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Dedupe makes webhook redeliveries harmless. The first delivery of a channel
// message id reserves the id in Redis with SETNX and stores the response; later
// deliveries get the stored response replayed without reaching the handler.
// Requests without a message id or Idempotency-Key header pass straight through.
func Dedupe(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || c.Method() != fiber.MethodPost {
			return c.Next()
		}
		key := inboundOf(c).MessageID
		if key == "" {
			key = strings.TrimSpace(c.Get(idempotencyKeyHeader))
		}
		if key == "" {
			return c.Next()
		}
		cacheKey := dedupePrefix + key

		ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			// fail open: a lost dedupe is safer than dropping a user's message
			logger.Error("dedupe reservation failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		if !reserved {
			metrics.WebhookDuplicatesTotal.Inc()
			return replay(c, cache, cacheKey, key, logger)
		}

		if err := c.Next(); err != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
			defer cancel()
			cache.Del(cleanupCtx, cacheKey)
			return err
		}

		stored := storedResponse{
			Status:  c.Response().StatusCode(),
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})
		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode deduped response", slog.String("key", key), slog.Any("error", err))
			return nil
		}
		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("failed to persist deduped response", slog.String("key", key), slog.Any("error", err))
		}
		return nil
	}
}

func replay(c *fiber.Ctx, cache *redis.Client, cacheKey, key string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()

	cached, err := cache.Get(ctx, cacheKey).Result()
	if err != nil {
		logger.Warn("duplicate message without stored response", slog.String("key", key), slog.Any("error", err))
		return c.SendStatus(fiber.StatusAccepted)
	}
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate message currently processing")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored response", slog.String("key", key), slog.Any("error", err))
		return c.SendStatus(fiber.StatusAccepted)
	}
	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) || strings.EqualFold(header, requestIDHeader) {
			continue
		}
		c.Set(header, value)
	}
	return c.Status(stored.Status).SendString(stored.Body)
}
