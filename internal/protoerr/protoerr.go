// Package protoerr defines the error taxonomy from the protocol's error
// handling design: each kind maps to exactly one recovery action in the
// session/state-machine layers (drop, drop+close, or reconnect).
package protoerr

import "errors"

var (
	// ErrTransport signals a socket failure. Close the session; if it is
	// a dialled peer, the neighbourhood manager schedules a reconnect.
	ErrTransport = errors.New("transport error")

	// ErrParse signals a malformed record. Drop, log, keep the session.
	ErrParse = errors.New("parse error")

	// ErrUnknownType signals a top-level or payload type this role does
	// not recognize. Drop, log.
	ErrUnknownType = errors.New("unknown message type")

	// ErrDisallowedType signals a recognized type not permitted from the
	// sender's current role/state. Drop, log.
	ErrDisallowedType = errors.New("disallowed message type for role")

	// ErrUnverifiedSender signals traffic on a still-Unverified session
	// that is not the required hello/server_hello. Drop and close.
	ErrUnverifiedSender = errors.New("message on unverified session")

	// ErrBadSignature signals a signature that does not verify under the
	// purported sender's key. Drop, log; session stays open.
	ErrBadSignature = errors.New("signature verification failed")

	// ErrStaleCounter signals a counter <= last-seen for that sender.
	// Drop, log.
	ErrStaleCounter = errors.New("stale or replayed counter")

	// ErrUnknownRecipientServer signals a chat addressed to a
	// destination_servers entry this server has no session to and is
	// not itself. Drop, log.
	ErrUnknownRecipientServer = errors.New("unknown recipient server")

	// ErrCryptoFailure signals a hybrid-decrypt failure on the
	// receiving client (no wrapped key unwrapped, or AEAD tag invalid).
	// Silently dropped by the caller.
	ErrCryptoFailure = errors.New("cryptographic operation failed")

	// ErrBadKey signals a malformed or undersized key.
	ErrBadKey = errors.New("bad key material")
)
