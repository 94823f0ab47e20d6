package types

// NotificationType identifies a message sent to the email collaborator.
type NotificationType string

const (
	NotificationRenewalSuccess        NotificationType = "renewal_success"
	NotificationPaymentFailure        NotificationType = "payment_failure"
	NotificationFinalWarning          NotificationType = "final_warning"
	NotificationCancellationConfirmed NotificationType = "cancellation_confirmed"
	NotificationBenefitsRevoked       NotificationType = "benefits_revoked"
)

func (t NotificationType) String() string {
	return string(t)
}
