// Package audio implements the sender/receiver audio data-plane stages
// that sit between the frame boundary and the packet boundary: the
// packetizer and depacketizer/streamer state machine (spec.md §4.7-4.8),
// the jitter buffer (§4.11), the fixed-point polyphase resampler
// (§4.12), and the frequency estimator (§4.13).
package audio
