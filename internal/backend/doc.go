// Package backend manages the websocket session to the trading backend.
//
// Every inbound frame is either a command reply ({"id","type","msg"}) that
// is routed to the waiting caller, or an event frame that is decoded with the
// event catalog and handed to a Publisher. Commands carry a UUID and time out
// after SessionConfig.CommandTimeout.
package backend
