// Package consumer drives endpoints with messages taken from channels.
//
// A polling consumer receives from a PollableChannel (like channel.QueueChannel) with a configurable
// number of workers. An event-driven consumer subscribes to a SubscribableChannel
// (like channel.PublishSubscribeChannel) and handles messages as they are pushed.
package consumer
