package service

import (
	"context"
	"time"

	"github.com/vibefunder/billing/internal/api/dto"
	"github.com/vibefunder/billing/internal/domain/subscription"
	"github.com/vibefunder/billing/internal/notification"
	"github.com/vibefunder/billing/internal/types"
)

// NotificationService publishes notifications for the email collaborator.
// Publishing never fails a billing operation.
type NotificationService interface {
	// Send publishes each notification and returns one warning per failure.
	// Call it only after the state the notifications describe has been committed.
	Send(ctx context.Context, notifications ...*notification.Notification) dto.Warnings
}

type notificationService struct {
	ServiceParams
}

func NewNotificationService(params ServiceParams) NotificationService {
	return &notificationService{ServiceParams: params}
}

func (s *notificationService) Send(ctx context.Context, notifications ...*notification.Notification) dto.Warnings {
	var warnings dto.Warnings
	if !s.Config.Notification.Enabled || s.Notifier == nil {
		return warnings
	}

	for _, n := range notifications {
		if n == nil {
			continue
		}
		if err := s.Notifier.Publish(ctx, n); err != nil {
			s.Logger.WithContext(ctx).Warnw("failed to publish notification",
				"notification_id", n.ID,
				"type", n.Type,
				"subscription_id", n.SubscriptionID,
				"error", err,
			)
			warnings.Add("notification " + n.Type.String() + " could not be sent")
		}
	}
	return warnings
}

// newSubscriptionNotification fills the subscription fields of a notification.
func newSubscriptionNotification(ctx context.Context, kind types.NotificationType, sub *subscription.Subscription, at time.Time) *notification.Notification {
	return notification.New(ctx, kind, sub.ID, sub.BackerID, sub.CampaignID, at)
}
