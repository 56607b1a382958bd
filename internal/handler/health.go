package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	amqpConn    *amqp.Connection
}

func NewHealthHandler(dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection) *HealthHandler {
	return &HealthHandler{dbPool: dbPool, redisClient: redisClient, amqpConn: amqpConn}
}

// Healthz reports process liveness only; it never touches a dependency.
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz checks every dependency the order path needs. The first failing
// check short-circuits; a degraded instance should drop out of rotation
// before taking checkouts.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{"database": "up", "cache": "up", "broker": "up"}

	if err := h.dbPool.Ping(ctx); err != nil {
		checks["database"] = "down"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		checks["cache"] = "down"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	if h.amqpConn.IsClosed() {
		checks["broker"] = "down"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
