package rabbitmq

// Имена exchange, очередей и ключей маршрутизации уведомлений.
const (
	NotificationsExchange = "notifications"
	BillingQueue          = "notifications.billing"
	BillingRoutingKey     = "billing"
)

// QueueConfig очередь и ключ, с которым она привязана к exchange уведомлений.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди, которые объявляют издатель и потребитель.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: BillingQueue, RoutingKey: BillingRoutingKey},
	}
}
