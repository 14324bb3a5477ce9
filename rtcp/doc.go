// Package rtcp builds and parses the RTCP reports the core consumes:
// sender reports (SR), receiver reports (RR), and source description
// (SDES) carrying CNAME (spec.md §1 "RTCP parsing/serialization details
// beyond the five report fields the core consumes" — NTP/RTP timestamp,
// packet count, and octet count for SR; cumulative loss, jitter, and
// last-SR/delay-since-last-SR for RR). A full compound-packet BYE/APP
// surface is out of scope; report building and parsing is grounded on
// github.com/pion/rtcp, and stream dispatch/lifecycle loosely follows
// roc_rtcp/communicator.cpp's begin/process/end-processing shape scaled
// down to the fields spec.md names.
package rtcp
