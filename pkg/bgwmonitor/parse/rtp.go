// Package parse turns raw `show rtp-stat detailed <id>` text into a
// models.RTPDetails record. The single master regex is a direct
// transliteration of rtpparser.py's RTP_DETAILED_PATTERNS tuple, joined in
// the same order and compiled with the equivalent of Python's
// re.M|re.S|re.I flags.
package parse

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/netwatch/bgwmonitor/models"
)

var rtpDetailedPattern = regexp.MustCompile(`(?is)` + strings.Join([]string{
	`.*?Session-ID: (?P<session_id>\d+)`,
	`.*?Status: (?P<status>\S+),`,
	`.*?QOS: (?P<qos>\S+),`,
	`.*?EngineId: (?P<engineid>\d+)`,
	`.*?Start-Time: (?P<start_time>\S+),`,
	`.*?End-Time: (?P<end_time>\S+)`,
	`.*?Duration: (?P<duration>\S+)`,
	`.*?CName: (?P<cname>\S+)`,
	`.*?Phone: (?P<phone>.*?)\s+`,
	`.*?Local-Address: (?P<local_addr>\S+):`,
	`.*?(?P<local_port>\d+)`,
	`.*?SSRC (?P<local_ssrc>\d+)`,
	`.*?Remote-Address: (?P<remote_addr>\S+):`,
	`.*?(?P<remote_port>\d+)`,
	`.*?SSRC (?P<remote_ssrc>\d+)`,
	`.*?(?P<remote_ssrc_change>\S+)`,
	`.*?Samples: (?P<samples>\d+)`,
	`.*?(?P<sampling_interval>\(.*?\))`,
	`.*?Codec:\s+(?P<codec>\S+)`,
	`.*?(?P<codec_psize>\S+)`,
	`.*?(?P<codec_ptime>\S+)`,
	`.*?(?P<codec_enc>\S+),`,
	`.*?Silence-suppression\(Tx/Rx\) (?P<codec_silence_suppr_tx>\S+)/`,
	`.*?(?P<codec_silence_suppr_rx>\S+),`,
	`.*?Play-Time (?P<codec_play_time>\S+),`,
	`.*?Loss (?P<codec_loss>\S+)`,
	`.*?#(?P<codec_loss_events>\d+),`,
	`.*?Avg-Loss (?P<codec_avg_loss>\S+),`,
	`.*?RTT (?P<codec_rtt>\S+)`,
	`.*?#(?P<codec_rtt_events>\d+),`,
	`.*?Avg-RTT (?P<codec_avg_rtt>\S+),`,
	`.*?JBuf-under/overruns (?P<codec_jbuf_underruns>\S+)/`,
	`.*?(?P<codec_jbuf_overruns>\S+),`,
	`.*?Jbuf-Delay (?P<codec_jbuf_delay>\S+),`,
	`.*?Max-Jbuf-Delay (?P<codec_max_jbuf_delay>\S+)`,
	`.*?Packets (?P<rx_rtp_packets>\d+),`,
	`.*?Loss (?P<rx_rtp_loss>\S+)`,
	`.*?#(?P<rx_rtp_loss_events>\d+),`,
	`.*?Avg-Loss (?P<rx_rtp_avg_loss>\S+),`,
	`.*?RTT (?P<rx_rtp_rtt>\S+)`,
	`.*?#(?P<rx_rtp_rtt_events>\d+),`,
	`.*?Avg-RTT (?P<rx_rtp_avg_rtt>\S+),`,
	`.*?Jitter (?P<rx_rtp_jitter>\S+)`,
	`.*?#(?P<rx_rtp_jitter_events>\d+),`,
	`.*?Avg-Jitter (?P<rx_rtp_avg_jitter>\S+),`,
	`.*?TTL\(last/min/max\) (?P<rx_rtp_ttl_last>\d+)/`,
	`.*?(?P<rx_rtp_ttl_min>\d+)/`,
	`.*?(?P<rx_rtp_ttl_max>\d+),`,
	`.*?Duplicates (?P<rx_rtp_duplicates>\d+),`,
	`.*?Seq-Fall (?P<rx_rtp_seqfall>\d+),`,
	`.*?DSCP (?P<rx_rtp_dscp>\d+),`,
	`.*?L2Pri (?P<rx_rtp_l2pri>\d+),`,
	`.*?RTCP (?P<rx_rtp_rtcp>\d+),`,
	`.*?Flow-Label (?P<rx_rtp_flow_label>\d+)`,
	`.*?VLAN (?P<tx_rtp_vlan>\d+),`,
	`.*?DSCP (?P<tx_rtp_dscp>\d+),`,
	`.*?L2Pri (?P<tx_rtp_l2pri>\d+),`,
	`.*?RTCP (?P<tx_rtp_rtcp>\d+),`,
	`.*?Flow-Label (?P<tx_rtp_flow_label>\d+)`,
	`.*?Loss (?P<rem_loss>\S+)`,
	`.*#(?P<rem_loss_events>\S+),`,
	`.*?Avg-Loss (?P<rem_avg_loss>\S+),`,
	`.*?Jitter (?P<rem_jitter>\S+)`,
	`.*?#(?P<rem_jitter_events>\S+),`,
	`.*?Avg-Jitter (?P<rem_avg_jitter>\S+)`,
	`.*?Loss (?P<ec_loss>\S+)`,
	`.*?#(?P<ec_loss_events>\S+),`,
	`.*?Len (?P<ec_len>\S+)`,
	`.*?Status (?P<rsvp_status>\S+),`,
	`.*?Failures (?P<rsvp_failures>\d+)`,
}, ""))

// RTPStat parses one `global_id -> raw rtp-stat text` pair into an
// RTPDetails record. globalID is split on "," and its third/fourth fields
// (the timestamp itself contains a comma) are taken as gateway number and
// session id, per rtpparser.py's parse_rtpstat. A non-matching blob is
// logged and reported via the bool return rather than an error, mirroring
// the original's "log and return None" behavior — a malformed single
// record must never abort the batch (spec.md §7).
func RTPStat(logger *slog.Logger, globalID, raw string) (models.RTPDetails, bool) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	parts := strings.Split(globalID, ",")
	var gwNumber, sessionID string
	if len(parts) >= 4 {
		gwNumber, sessionID = parts[2], parts[3]
	}

	m := rtpDetailedPattern.FindStringSubmatch(raw)
	if m == nil {
		logger.Debug("rtp-stat blob did not match expected format", "global_id", globalID)
		return models.RTPDetails{}, false
	}
	names := rtpDetailedPattern.SubexpNames()
	g := func(name string) string {
		for i, n := range names {
			if n == name && i < len(m) {
				return m[i]
			}
		}
		return ""
	}

	return models.RTPDetails{
		GlobalID:  globalID,
		GWNumber:  gwNumber,
		SessionID: sessionID,

		Status: g("status"),
		QoS:    g("qos"),

		EngineID:  g("engineid"),
		StartTime: g("start_time"),
		EndTime:   g("end_time"),
		Duration:  g("duration"),

		CName: g("cname"),
		Phone: g("phone"),

		LocalAddr:  g("local_addr"),
		LocalPort:  g("local_port"),
		LocalSSRC:  g("local_ssrc"),
		RemoteAddr: g("remote_addr"),
		RemotePort: g("remote_port"),
		RemoteSSRC: g("remote_ssrc"),

		Samples:          g("samples"),
		SamplingInterval: g("sampling_interval"),

		Codec:               g("codec"),
		CodecPSize:          g("codec_psize"),
		CodecPTime:          g("codec_ptime"),
		CodecEnc:            g("codec_enc"),
		CodecSilenceSupprTx: g("codec_silence_suppr_tx"),
		CodecSilenceSupprRx: g("codec_silence_suppr_rx"),
		CodecPlayTime:       g("codec_play_time"),
		CodecLoss:           g("codec_loss"),
		CodecLossEvents:     g("codec_loss_events"),
		CodecAvgLoss:        g("codec_avg_loss"),
		CodecRTT:            g("codec_rtt"),
		CodecRTTEvents:      g("codec_rtt_events"),
		CodecAvgRTT:         g("codec_avg_rtt"),
		CodecJbufUnderruns:  g("codec_jbuf_underruns"),
		CodecJbufOverruns:   g("codec_jbuf_overruns"),
		CodecJbufDelay:      g("codec_jbuf_delay"),
		CodecMaxJbufDelay:   g("codec_max_jbuf_delay"),

		RxPackets:      g("rx_rtp_packets"),
		RxLoss:         g("rx_rtp_loss"),
		RxLossEvents:   g("rx_rtp_loss_events"),
		RxAvgLoss:      g("rx_rtp_avg_loss"),
		RxRTT:          g("rx_rtp_rtt"),
		RxRTTEvents:    g("rx_rtp_rtt_events"),
		RxAvgRTT:       g("rx_rtp_avg_rtt"),
		RxJitter:       g("rx_rtp_jitter"),
		RxJitterEvents: g("rx_rtp_jitter_events"),
		RxAvgJitter:    g("rx_rtp_avg_jitter"),
		RxTTLLast:      g("rx_rtp_ttl_last"),
		RxTTLMin:       g("rx_rtp_ttl_min"),
		RxTTLMax:       g("rx_rtp_ttl_max"),
		RxDuplicates:   g("rx_rtp_duplicates"),
		RxSeqFall:      g("rx_rtp_seqfall"),
		RxDSCP:         g("rx_rtp_dscp"),
		RxL2Pri:        g("rx_rtp_l2pri"),
		RxRTCP:         g("rx_rtp_rtcp"),
		RxFlowLabel:    g("rx_rtp_flow_label"),

		TxVLAN:      g("tx_rtp_vlan"),
		TxDSCP:      g("tx_rtp_dscp"),
		TxL2Pri:     g("tx_rtp_l2pri"),
		TxRTCP:      g("tx_rtp_rtcp"),
		TxFlowLabel: g("tx_rtp_flow_label"),

		RemLoss:         g("rem_loss"),
		RemLossEvents:   g("rem_loss_events"),
		RemAvgLoss:      g("rem_avg_loss"),
		RemJitter:       g("rem_jitter"),
		RemJitterEvents: g("rem_jitter_events"),
		RemAvgJitter:    g("rem_avg_jitter"),

		ECLoss:       g("ec_loss"),
		ECLossEvents: g("ec_loss_events"),
		ECLen:        g("ec_len"),

		RSVPStatus:   g("rsvp_status"),
		RSVPFailures: g("rsvp_failures"),
	}, true
}

// LocalSSRCHex and RemoteSSRCHex render the decimal SSRC fields as
// hexadecimal, mirroring rtpparser.py's local_ssrc_hex/remote_ssrc_hex
// properties. Returned as "" if the field isn't a valid integer.
func LocalSSRCHex(r models.RTPDetails) string  { return hexOf(r.LocalSSRC) }
func RemoteSSRCHex(r models.RTPDetails) string { return hexOf(r.RemoteSSRC) }

func hexOf(dec string) string {
	n, err := strconv.ParseUint(dec, 10, 64)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", n)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
