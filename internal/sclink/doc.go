// Package sclink talks to a Mitsubishi Heavy Industries SC-SL4 central
// controller.
//
// It has two layers:
//
//   - The frame codec (frame.go, status.go, command.go) turns bytes into
//     frames and frames into unit records, and turns partial commands into
//     write requests. It is pure and has no I/O.
//   - The Manager owns the one session the controller allows. It logs in,
//     polls every configured block on a fixed interval, and serialises writes
//     from the dispatcher onto the same connection.
//
// # Wire format
//
//	+--------+------------+-----+------+-----------+------------+
//	| 0xA5   | len (BE16) | seq | type | payload   | crc (BE16) |
//	+--------+------------+-----+------+-----------+------------+
//	                 len = 2 + len(payload), at most 512
//	                 crc = CRC-16/MODBUS over len..payload
//
// Message types:
//
//	0x01 login          user, password (length-prefixed strings)
//	0x81 login reply    0 ok, 1 bad credentials, 2 no free session
//	0x02 status request block
//	0x82 status reply   block, count, count × 8-byte unit records
//	0x03 write          block, unit, field mask, one byte per set bit
//	0x83 write ack      block, unit, 0 ok, 1 rejected, 2 unknown unit
//	0x7F error          1 not logged in, 2 busy, 3 bad request
//
// A write only carries the fields whose mask bit is set, so the controller
// leaves every other field of the unit as it was.
//
// # Failure handling
//
// A record with an out-of-range value is reported per unit as a *DecodeError
// and the rest of the block still applies. A block whose request times out is
// reported as unanswered; when every block times out the session is dropped
// and re-established with backoff. ErrAuthFailed stops reconnection until
// UpdateCredentials is called.
//
// Transports: TCPDialer for the controller's Ethernet port and SerialDialer
// for an RS-485 adaptor.
package sclink
