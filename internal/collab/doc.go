// Package collab replicates buffers between processes.
//
// A Peer binds a buffer.Buffer to a Transport. Local operations are
// broadcast as they happen; remote operations are merged with
// buffer.Apply, which tolerates duplicates and reordering. On start, and
// after every reconnect, a peer says hello with its version; whoever has
// something the peer lacks answers with the missing operations, or with
// a full exported state when that history was garbage-collected.
//
// Transports:
//
//	MemoryNetwork       in-process, optionally reordering and duplicating
//	Hub                 websocket relay, one room per document
//	WebSocketTransport  client of a Hub, redials with backoff
//	RedisTransport      one pub/sub channel per document
//
// Envelopes are JSON. The format is an implementation detail shared by
// these transports, not a protocol for other programs.
package collab
