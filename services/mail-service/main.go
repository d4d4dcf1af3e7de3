package main

import (
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ashendes/checkout-engine/internal/metrics"
	"github.com/ashendes/checkout-engine/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const serviceName = "mail-service"

// MailService accepts order confirmation mails
type MailService struct {
	mails      map[string]*models.MailRecord
	mutex      sync.RWMutex
	chaos      chaosMode
	chaosMutex sync.RWMutex
}

// chaosMode is the fault injection applied to confirmation requests.
type chaosMode struct {
	Failing bool `json:"failing"`
	Slow    bool `json:"slow"`
}

// chaosActions maps POST /chaos/mail/<action> to its effect on the mode.
var chaosActions = map[string]func(chaosMode) chaosMode{
	"enable":       func(m chaosMode) chaosMode { m.Failing = true; return m },
	"disable":      func(chaosMode) chaosMode { return chaosMode{} },
	"slow":         func(m chaosMode) chaosMode { m.Slow = true; return m },
	"slow/disable": func(m chaosMode) chaosMode { m.Slow = false; return m },
}

var mailService *MailService

func init() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	mailService = &MailService{
		mails: make(map[string]*models.MailRecord),
	}
}

func main() {
	router := setupRouter()

	port := getEnv("PORT", "8083")
	log.WithField("port", port).Info("Mail Service starting")
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()

	// Add Prometheus middleware
	router.Use(metrics.PrometheusMiddleware(serviceName))

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/mail/status", getStatus)

	// Mail endpoints
	router.POST("/mail/order-confirmation", sendOrderConfirmation)
	router.GET("/mail/:messageId", getMail)

	// Chaos engineering endpoints
	router.POST("/chaos/mail/*action", setChaos)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func getStatus(c *gin.Context) {
	mailService.mutex.RLock()
	accepted := len(mailService.mails)
	mailService.mutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"service":        serviceName,
		"status":         "healthy",
		"mails_accepted": accepted,
		"chaos":          mailService.chaosMode(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func sendOrderConfirmation(c *gin.Context) {
	var req models.OrderConfirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.MailResponse{
			Status:  models.MailStatusFailed,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	// Simulate chaos
	if simulateChaos() {
		log.WithFields(log.Fields{
			"order_id":    req.OrderID,
			"customer_id": req.CustomerID,
		}).Warn("Chaos: Simulated mail failure")

		c.JSON(http.StatusServiceUnavailable, models.MailResponse{
			Status:  models.MailStatusFailed,
			Message: "Mail service temporarily unavailable",
		})
		return
	}

	record := &models.MailRecord{
		ID:         uuid.New().String(),
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Recipient:  req.Email,
		Status:     models.MailStatusQueued,
		Timestamp:  time.Now(),
	}

	mailService.mutex.Lock()
	mailService.mails[record.ID] = record
	mailService.mutex.Unlock()

	metrics.MailsReceived.Inc()

	log.WithFields(log.Fields{
		"message_id":  record.ID,
		"order_id":    req.OrderID,
		"customer_id": req.CustomerID,
		"name":        req.Name,
	}).Info("Order confirmation queued")

	c.JSON(http.StatusAccepted, models.MailResponse{
		MessageID: record.ID,
		Status:    models.MailStatusQueued,
		Message:   "Order confirmation queued",
	})
}

func getMail(c *gin.Context) {
	id := c.Param("messageId")

	mailService.mutex.RLock()
	record, exists := mailService.mails[id]
	mailService.mutex.RUnlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Mail not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// setChaos applies one chaos action and publishes the resulting mode as gauges.
func setChaos(c *gin.Context) {
	action := strings.TrimPrefix(c.Param("action"), "/")
	apply, ok := chaosActions[action]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown chaos action: " + action})
		return
	}

	mode := mailService.updateChaos(apply)
	metrics.ChaosFailureRate.WithLabelValues(serviceName).Set(gaugeValue(mode.Failing))
	metrics.ChaosSlowMode.WithLabelValues(serviceName).Set(gaugeValue(mode.Slow))

	log.WithFields(log.Fields{
		"action":  action,
		"failing": mode.Failing,
		"slow":    mode.Slow,
	}).Info("Chaos mode changed for mail service")
	c.JSON(http.StatusOK, gin.H{
		"action": action,
		"chaos":  mode,
		"info":   "failing mode rejects 40% of requests; slow mode adds 5-10 second delays",
	})
}

func gaugeValue(on bool) float64 {
	if on {
		return 1
	}
	return 0
}

func (ms *MailService) chaosMode() chaosMode {
	ms.chaosMutex.RLock()
	defer ms.chaosMutex.RUnlock()
	return ms.chaos
}

func (ms *MailService) updateChaos(apply func(chaosMode) chaosMode) chaosMode {
	ms.chaosMutex.Lock()
	defer ms.chaosMutex.Unlock()
	ms.chaos = apply(ms.chaos)
	return ms.chaos
}

// simulateChaos sleeps in slow mode and reports whether this request should fail.
func simulateChaos() bool {
	mode := mailService.chaosMode()
	if mode.Slow {
		delay := time.Duration(5000+rand.Intn(5000)) * time.Millisecond
		log.WithField("delay_ms", delay.Milliseconds()).Debug("Chaos: Simulating slow response")
		time.Sleep(delay)
	}

	// 40% failure rate
	return mode.Failing && rand.Float32() < 0.4
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
