package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/models"
)

const deliveryTimeout = 30 * time.Second

// Service fans events out to every channel that wants them
type Service struct {
	channels []Channel
	wg       sync.WaitGroup
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// NewService creates a notification service with the channels enabled in cfg
func NewService(cfg *config.Config) *Service {
	channels := []Channel{NewWebhookNotifier(cfg.WebhookSecret, cfg.WebhookTimeout)}

	if cfg.NotificationEmail != "" {
		channels = append(channels, NewEmailNotifier(EmailOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			To:       cfg.NotificationEmail,
		}))
	}

	return NewServiceWithChannels(channels...)
}

// NewServiceWithChannels creates a service over explicit channels
func NewServiceWithChannels(channels ...Channel) *Service {
	return &Service{channels: channels}
}

// Notify hands the event to each interested channel in the background.
// Deliveries outlive ctx cancellation but not deliveryTimeout.
func (s *Service) Notify(ctx context.Context, spec *models.KeywordSearchSpec, event EventKind, payload interface{}) {
	for _, ch := range s.channels {
		if !ch.Accepts(spec, event) {
			continue
		}

		s.wg.Add(1)
		go func(ch Channel) {
			defer s.wg.Done()

			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
			defer cancel()

			if err := ch.Send(sendCtx, spec, event, payload); err != nil {
				logrus.WithFields(logrus.Fields{
					"channel":   ch.Name(),
					"event":     event,
					"search_id": spec.ID,
					"error":     err,
				}).Error("Failed to deliver notification")
				return
			}

			logrus.WithFields(logrus.Fields{
				"channel":   ch.Name(),
				"event":     event,
				"search_id": spec.ID,
			}).Debug("Notification delivered")
		}(ch)
	}
}

// Wait blocks until in-flight deliveries finish
func (s *Service) Wait() {
	s.wg.Wait()
}
