// Package amqp publishes outbox events to RabbitMQ through rabbitmq/amqp091-go.
//
// Every event topic is an exchange name and the event key is the routing key. Messages are
// persistent, carry the event ID as MessageId and attributes as headers, and Publish returns
// only after the broker confirmed the message.
package amqp
