// Package httpserver is the HTTP/1.1 server built on top of the event
// loop: a non-blocking listening socket accepts connections, each fed
// through an httpparser.Parser byte by byte, dispatching a Request/
// Response pair to a Handler per completed parse and honouring HTTP
// keep-alive negotiation, pipelining, idle timeouts, and graceful
// shutdown.
package httpserver
