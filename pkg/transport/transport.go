// Package transport defines the call bridge boundary between the responder
// core and whatever carries audio to and from the caller.
//
// The core is deliberately oblivious to SIP, WebRTC, or RTP details: a
// [Bridge] is nothing more than a source of uplink PCM16 frames and a sink
// for encoded downlink frames. Adapter packages (e.g. transport/ws) map
// concrete protocols onto this interface.
package transport

// Bridge represents one active call leg.
//
// Implementations must be safe for concurrent use: the uplink channel is
// read by the session loop while SendFrame is called from the playout
// scheduler.
type Bridge interface {
	// Uplink returns a read-only channel delivering raw little-endian PCM16
	// frames from the caller as they arrive. The channel is closed when the
	// caller hangs up or the bridge is closed. Implementations drop frames
	// rather than block when the consumer falls behind; uplink audio is
	// only ever inspected for voice activity, so gaps are harmless.
	Uplink() <-chan []byte

	// SendFrame transmits one encoded downlink frame. It is called once per
	// ptime by the playout scheduler and must return promptly; a slow or
	// dead peer must surface as an error, not a stall.
	SendFrame(frame []byte) error

	// Close tears down the call leg and closes the uplink channel. Close is
	// idempotent; subsequent calls are no-ops and return nil.
	Close() error
}
