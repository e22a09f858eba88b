// Package chat implements the tenant-partitioned channel messaging hub.
//
// A Hub owns a bounded MessageLog and a Registry of live connections for every
// (tenant, channel) key. Joining replays recent history to the new connection,
// publishing appends to the log and fans the message out to every member.
// Delivery failures are local to the failing connection: it is deregistered
// and the rest of the channel keeps receiving.
package chat
