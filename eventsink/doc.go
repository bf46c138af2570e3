// Package eventsink ships goGrant lifecycle events to external systems.
//
// [Kafka] publishes every event as a JSON record through
// github.com/twmb/franz-go. Records are keyed by user id, so the events of
// one account keep their order within a partition. Produce is asynchronous;
// delivery failures are logged and counted, never returned to the engine.
package eventsink
