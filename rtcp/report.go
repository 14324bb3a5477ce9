package rtcp

import (
	"fmt"
	"time"

	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// ToNTP converts a wall-clock time to a 64-bit NTP timestamp (32-bit
// seconds, 32-bit fraction).
func ToNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()+ntpEpochOffset) << 32
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	return secs | frac
}

// SenderInfo is the subset of a sender report spec.md §1 names as
// in-scope: NTP/RTP timestamp pair and cumulative packet/octet counts.
type SenderInfo struct {
	SSRC        uint32
	NTPTime     uint64
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
}

// ReceiverInfo is the subset of a receiver report block spec.md §1
// names as in-scope: cumulative loss, fraction lost, jitter, and the
// last-SR/delay-since-last-SR pair.
type ReceiverInfo struct {
	SSRC               uint32
	FractionLost       uint8
	CumulativeLost     int32
	ExtendedHighestSeq uint32
	Jitter             uint32
	LastSR             uint32
	DelaySinceLastSR   uint32
}

// BuildSenderReport builds a compound SR + SDES(CNAME) packet for a
// sender session (spec.md §4.9/§4.14: SSRC/CNAME identity plus the
// timestamp-mapper's affine mapping feed this).
func BuildSenderReport(info SenderInfo, cname string, receiverBlocks []ReceiverInfo) ([]byte, error) {
	sr := &rtcp.SenderReport{
		SSRC:        info.SSRC,
		NTPTime:     info.NTPTime,
		RTPTime:     info.RTPTime,
		PacketCount: info.PacketCount,
		OctetCount:  info.OctetCount,
		Reports:     toReceptionReports(receiverBlocks),
	}
	sdes := sdesPacket(info.SSRC, cname)

	buf, err := rtcp.Marshal([]rtcp.Packet{sr, sdes})
	if err != nil {
		return nil, fmt.Errorf("rtcp: report: marshal sender report: %w", err)
	}
	return buf, nil
}

// BuildReceiverReport builds a compound RR + SDES(CNAME) packet for a
// receiver session.
func BuildReceiverReport(ssrc uint32, cname string, blocks []ReceiverInfo) ([]byte, error) {
	rr := &rtcp.ReceiverReport{
		SSRC:    ssrc,
		Reports: toReceptionReports(blocks),
	}
	sdes := sdesPacket(ssrc, cname)

	buf, err := rtcp.Marshal([]rtcp.Packet{rr, sdes})
	if err != nil {
		return nil, fmt.Errorf("rtcp: report: marshal receiver report: %w", err)
	}
	return buf, nil
}

func toReceptionReports(blocks []ReceiverInfo) []rtcp.ReceptionReport {
	out := make([]rtcp.ReceptionReport, 0, len(blocks))
	for _, b := range blocks {
		totalLost := b.CumulativeLost
		if totalLost < 0 {
			totalLost = 0
		}
		out = append(out, rtcp.ReceptionReport{
			SSRC:               b.SSRC,
			FractionLost:       b.FractionLost,
			TotalLost:          uint32(totalLost),
			LastSequenceNumber: b.ExtendedHighestSeq,
			Jitter:             b.Jitter,
			LastSenderReport:   b.LastSR,
			Delay:              b.DelaySinceLastSR,
		})
	}
	return out
}

func sdesPacket(ssrc uint32, cname string) *rtcp.SourceDescription {
	return &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{
			{
				Source: ssrc,
				Items: []rtcp.SourceDescriptionItem{
					{Type: rtcp.SDESCNAME, Text: cname},
				},
			},
		},
	}
}

// ParsedReport is what Parse extracts from a compound RTCP packet: any
// sender/receiver info present, plus the CNAME bound to each SSRC an
// SDES chunk names.
type ParsedReport struct {
	SenderInfos   []SenderInfo
	ReceiverInfos []ReceiverInfo
	CNAMEs        map[uint32]string
}

// Parse decodes a compound RTCP packet into the fields spec.md §1 scopes
// in: SR/RR report fields and SDES CNAME bindings. Unrecognized packet
// types (BYE, APP, PSFB, etc.) are skipped, not errors.
func Parse(buf []byte) (ParsedReport, error) {
	packets, err := rtcp.Unmarshal(buf)
	if err != nil {
		return ParsedReport{}, fmt.Errorf("rtcp: report: unmarshal: %w", err)
	}

	out := ParsedReport{CNAMEs: make(map[uint32]string)}
	for _, p := range packets {
		switch pkt := p.(type) {
		case *rtcp.SenderReport:
			out.SenderInfos = append(out.SenderInfos, SenderInfo{
				SSRC:        pkt.SSRC,
				NTPTime:     pkt.NTPTime,
				RTPTime:     pkt.RTPTime,
				PacketCount: pkt.PacketCount,
				OctetCount:  pkt.OctetCount,
			})
			out.ReceiverInfos = append(out.ReceiverInfos, fromReceptionReports(pkt.Reports)...)
		case *rtcp.ReceiverReport:
			out.ReceiverInfos = append(out.ReceiverInfos, fromReceptionReports(pkt.Reports)...)
		case *rtcp.SourceDescription:
			for _, chunk := range pkt.Chunks {
				for _, item := range chunk.Items {
					if item.Type == rtcp.SDESCNAME {
						out.CNAMEs[chunk.Source] = item.Text
					}
				}
			}
		default:
			logrus.WithField("type", fmt.Sprintf("%T", p)).Trace("rtcp: report: skipped packet type")
		}
	}
	return out, nil
}

func fromReceptionReports(reports []rtcp.ReceptionReport) []ReceiverInfo {
	out := make([]ReceiverInfo, 0, len(reports))
	for _, r := range reports {
		out = append(out, ReceiverInfo{
			SSRC:               r.SSRC,
			FractionLost:       r.FractionLost,
			CumulativeLost:     int32(r.TotalLost),
			ExtendedHighestSeq: r.LastSequenceNumber,
			Jitter:             r.Jitter,
			LastSR:             r.LastSenderReport,
			DelaySinceLastSR:   r.Delay,
		})
	}
	return out
}
