// Dispatch is a Golang library for routing messages between in-process endpoints.
//
// An endpoint binds a single handler to a selector chain and a reply routing policy.
// Replies are delivered to the next target chosen by the handler, the endpoint's output channel
// or the return address of the inbound message, in that order.
//
// Channels, a channel registry and consumers driving endpoints from channels are provided
// by the channel and consumer packages.
package dispatch
