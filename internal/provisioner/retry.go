package provisioner

import amqp "github.com/rabbitmq/amqp091-go"

// retryCount extracts the broker's x-death header's first entry's count,
// defaulting to 0. This is the retry counter the dead-letter cycle
// increments on every nack-without-requeue.
func retryCount(headers amqp.Table) int64 {
	raw, ok := headers["x-death"]
	if !ok {
		return 0
	}
	deaths, ok := raw.([]interface{})
	if !ok || len(deaths) == 0 {
		return 0
	}
	first, ok := deaths[0].(amqp.Table)
	if !ok {
		return 0
	}
	switch v := first["count"].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}
