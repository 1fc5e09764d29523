package models

import (
	"strconv"
	"strings"
	"time"
)

// NokReason classifies why an RTPDetails record is unhealthy. Grounded on
// spec.md §3/§8: Zero means zero received packets, QoS means a QoS fault,
// None means healthy.
type NokReason string

const (
	NokNone NokReason = "None"
	NokZero NokReason = "Zero"
	NokQoS  NokReason = "QoS"
)

// RTPDetails is one observed RTP session, parsed from a `show rtp-stat
// detailed <id>` blob. Field names and grouping follow rtpparser.py's
// RTP_DETAILED_PATTERNS capture groups directly.
type RTPDetails struct {
	GlobalID  string // "<start-time>,<gateway-number>,<session-id>"
	GWNumber  string
	SessionID string

	Status string // e.g. "Active", "Terminated"
	QoS    string // e.g. "ok", "faulted"

	EngineID  string
	StartTime string // raw "%Y-%m-%d,%H:%M:%S"
	EndTime   string // raw, or "-" while active
	Duration  string

	CName string
	Phone string

	LocalAddr  string
	LocalPort  string
	LocalSSRC  string
	RemoteAddr string
	RemotePort string
	RemoteSSRC string

	Samples          string
	SamplingInterval string

	Codec                  string
	CodecPSize             string
	CodecPTime             string
	CodecEnc               string
	CodecSilenceSupprTx    string
	CodecSilenceSupprRx    string
	CodecPlayTime          string
	CodecLoss              string
	CodecLossEvents        string
	CodecAvgLoss           string
	CodecRTT               string
	CodecRTTEvents         string
	CodecAvgRTT            string
	CodecJbufUnderruns     string
	CodecJbufOverruns      string
	CodecJbufDelay         string
	CodecMaxJbufDelay      string

	RxPackets     string
	RxLoss        string
	RxLossEvents  string
	RxAvgLoss     string
	RxRTT         string
	RxRTTEvents   string
	RxAvgRTT      string
	RxJitter      string
	RxJitterEvents string
	RxAvgJitter   string
	RxTTLLast     string
	RxTTLMin      string
	RxTTLMax      string
	RxDuplicates  string
	RxSeqFall     string
	RxDSCP        string
	RxL2Pri       string
	RxRTCP        string
	RxFlowLabel   string

	TxVLAN      string
	TxDSCP      string
	TxL2Pri     string
	TxRTCP      string
	TxFlowLabel string

	RemLoss        string
	RemLossEvents  string
	RemAvgLoss     string
	RemJitter      string
	RemJitterEvents string
	RemAvgJitter   string

	ECLoss       string
	ECLossEvents string
	ECLen        string

	RSVPStatus   string
	RSVPFailures string
}

// IsActive reports whether the session is still ongoing. Per spec.md §3/§8,
// this is exactly "status != Terminated" — no broader inference (see
// DESIGN.md Open Question decision 4).
func (r *RTPDetails) IsActive() bool {
	return r.Status != "Terminated"
}

// IsOK reports whether QoS was healthy and at least one packet was received,
// mirroring rtpparser.py's `is_ok` property.
func (r *RTPDetails) IsOK() bool {
	return strings.EqualFold(r.QoS, "ok") && rxPackets(r.RxPackets) > 0
}

// Nok classifies the session's health per spec.md §3/§8:
//
//	Zero  iff rx_rtp_packets == 0
//	None  iff qos == "ok" && rx_rtp_packets > 0
//	QoS   otherwise
func (r *RTPDetails) Nok() NokReason {
	if rxPackets(r.RxPackets) == 0 {
		return NokZero
	}
	if strings.EqualFold(r.QoS, "ok") {
		return NokNone
	}
	return NokQoS
}

// StartDatetime parses StartTime using the gateway's timestamp layout. Zero
// time and ok=false are returned if StartTime is empty or malformed.
func (r *RTPDetails) StartDatetime() (time.Time, bool) {
	return parseGatewayTime(r.StartTime)
}

// EndDatetime parses EndTime, returning ok=false while the session is still
// active (EndTime == "-") or on a parse failure.
func (r *RTPDetails) EndDatetime() (time.Time, bool) {
	if r.EndTime == "-" || r.EndTime == "" {
		return time.Time{}, false
	}
	return parseGatewayTime(r.EndTime)
}

// DurationSecs returns the whole-second duration between start and end, or
// ok=false if the session hasn't ended or either timestamp fails to parse.
func (r *RTPDetails) DurationSecs() (int64, bool) {
	start, ok := r.StartDatetime()
	if !ok {
		return 0, false
	}
	end, ok := r.EndDatetime()
	if !ok {
		return 0, false
	}
	return int64(end.Sub(start).Seconds()), true
}

const gatewayTimeLayout = "2006-01-02,15:04:05"

func parseGatewayTime(s string) (time.Time, bool) {
	t, err := time.Parse(gatewayTimeLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// rxPackets parses a received-packet-count field, treating anything that
// isn't a plain unsigned integer as zero rather than an error, matching the
// original's lenient int(..., 0) coercion.
func rxPackets(s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
