// Package outbox provides a transactional outbox with pluggable storage backends and event transports.
//
// Typical flow:
//  1. A Runner opens a state transaction through a StateStore and hands the caller a Transaction.
//  2. Business logic mutates state through Transaction.State and stages events through
//     Transaction.Publish. Staged events never reach the network.
//  3. Before the state transaction commits, staged events are written as outbox rows carrying
//     a shared lease expiration. State and rows commit atomically or not at all.
//  4. After commit the Runner hands the rows to a Sender in the background. Rows that are not
//     delivered there are reclaimed by Sender.Run once their lease expires.
//
// Delivery is at-least-once: consumers deduplicate by the event ID.
//
// Storage engines live in the mysql, postgres, sqlite and memory packages. The amqp package
// provides a RabbitMQ EventPublisher.
package outbox
