// Package server is the transport side of the chat service: it upgrades
// authenticated HTTP requests to WebSocket clients, joins them to the hub,
// turns their frames into publishes and exposes a small JSON API for
// dashboards and for services posting system notices.
//
// The hub never closes a client. Clients close themselves when their peer
// goes away or cannot keep up, and the gateway closes them all on shutdown.
package server
