package types

// PubSubType defines the type of pubsub implementation
type PubSubType string

const (
	// PubSubTypeMemory uses watermill's in-process go channels
	PubSubTypeMemory PubSubType = "memory"

	// PubSubTypeKafka uses watermill-kafka
	PubSubTypeKafka PubSubType = "kafka"
)

// NotificationDeliveryType selects how the consumer hands notifications to the email collaborator.
type NotificationDeliveryType string

const (
	NotificationDeliveryHTTP NotificationDeliveryType = "http"
	NotificationDeliverySvix NotificationDeliveryType = "svix"
	// NotificationDeliveryLog only logs the notification. Local development.
	NotificationDeliveryLog NotificationDeliveryType = "log"
)
