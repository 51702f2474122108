package kafka

// Топики Kafka для событий столовой.
const (
	TopicOrderEvents     = "canteen.order.events"
	TopicDeadLetterQueue = "canteen.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)
