package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"fleet-monitor-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON body pushed to operators' browsers.
type Message struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	RobotID   string `json:"robot_id"`
	RobotType string `json:"robot_type"`
	Category  string `json:"category"`
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan model.ExceptionOpen
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool. The queue holds a few jobs per
// worker; Dispatch drops jobs beyond that.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.ExceptionOpen, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("notification worker started")
	for {
		select {
		case exc := <-wp.jobs:
			wp.notifyAll(ctx, exc)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues a notification without blocking. It reports false when the
// queue is full and the job was dropped.
func (wp *WorkerPool) Dispatch(exc model.ExceptionOpen) bool {
	select {
	case wp.jobs <- exc:
		return true
	default:
		log.Warn().Str("robot", exc.RobotID).Msg("notification queue full; dropping push")
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.ExceptionOpen {
	return wp.jobs
}

func (wp *WorkerPool) notifyAll(ctx context.Context, exc model.ExceptionOpen) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Error().Err(err).Str("robot", exc.RobotID).Msg("failed to fetch push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(messageFor(exc))
	if err != nil {
		log.Error().Err(err).Msg("failed to encode push payload")
		return
	}

	log.Info().Int("subscribers", len(subscriptions)).Str("robot", exc.RobotID).Msg("sending exception notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func messageFor(exc model.ExceptionOpen) Message {
	return Message{
		Title:     fmt.Sprintf("%s on %s", exc.Category, exc.RobotID),
		Body:      fmt.Sprintf("%s (%s): %s", exc.RobotID, exc.RobotType, exc.Detail),
		RobotID:   exc.RobotID,
		RobotType: exc.RobotType,
		Category:  exc.Category,
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("push subscription expired; deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
