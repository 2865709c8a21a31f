// Package webhook normalizes provider webhook payloads.
//
// Providers wrap events inconsistently: a single object, an array of
// objects, or an envelope such as {"event": "message", "payload": {...}} or
// {"events": [...]}. Normalizer walks whatever JSON arrived and classifies
// each object node structurally:
//
//   - message-like nodes (a chat id, a body or a nested message object)
//     become IncomingMessage values
//   - status-like nodes (an ack, status or state field, or any node under a
//     status/ack event) become StatusUpdate values
//   - everything else is descended into
//
// Every logical field is resolved from an ordered list of candidate paths,
// first non-empty wins. Deployments can prepend their own paths through the
// webhook.candidates configuration key.
//
// Session and event names found on an envelope are inherited by the nodes
// beneath it. The walk tolerates cycles and caps its depth.
package webhook
