// Package ingest consumes delivery feedback pushed by the provider's
// notification topic and projects it onto stored messages. Every parsed
// notification is appended to the message's event stream as a fact;
// status is a projection computed through the monotonic lifecycle rules,
// so replays and out-of-order arrival never corrupt it.
package ingest
