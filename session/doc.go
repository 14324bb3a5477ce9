// Package session is the router/fanout and pipeline-assembler layer
// (spec.md §4.15-§4.16): it builds the sender and receiver DAGs out of
// the lower-level packet/rtp/fec/interleave/audio/rtcp packages, routes
// outbound packets to the right transport endpoint and inbound packets
// to the right session, and fans outbound frames out to every
// participating session while unlinking any that fail terminally.
package session
