// Package bridge serves the browser-extension protocol on a loopback
// socket.
//
// Server accepts connections and runs one goroutine per connection. Each
// connection carries exactly one request and one response, handled by
// Handler, after which it is closed. The only state shared between
// connections is the pairing store.
package bridge
