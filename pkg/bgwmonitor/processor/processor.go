// Package processor is the Result Processor: the sole writer of BGWs and
// RTPs updates (spec.md §4.5). Grounded on async_loop.py's process_item.
// A JSON decode failure or an unresolved gateway is logged at Error level
// and that single result is dropped; Process returns nothing to its caller
// (spec.md §7).
package processor

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/netwatch/bgwmonitor/models"
	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/parse"
)

// payload is the decoded shape of a poller's stdout JSON document, per the
// Result Processor contract in spec.md §4.5.
type payload struct {
	BGWIP       string            `json:"bgw_ip"`
	LanIP       string            `json:"lan_ip"`
	GWName      string            `json:"gw_name"`
	GWNumber    string            `json:"gw_number"`
	LastSessID  string            `json:"last_session_id"`
	LastSeen    string            `json:"last_seen"`
	Commands    map[string]string `json:"commands"`
	RTPSessions map[string]string `json:"rtp_sessions"`
}

// Stores bundles the three collections the processor writes, matching the
// engine's ownership split in spec.md §2/§4.10.
type Stores struct {
	GWs  *models.OrderedStore[string, string] // lan_ip -> gw_number
	BGWs *models.OrderedStore[string, *models.BGW]
	RTPs *models.OrderedStore[string, models.RTPDetails]
}

// Processor applies poll results to the stores. NokRTPOnly mirrors the
// `nok_rtp_only` configuration key (spec.md §4.5 step 6).
type Processor struct {
	Stores     Stores
	NokRTPOnly bool
	OnChange   func()
	Logger     *slog.Logger
}

// Process decodes stdout as JSON and applies it. A nil resolved parameter
// means "look up by gw_number in BGWs"; discovery passes the freshly built
// gateway directly since it isn't in BGWs yet.
func (p *Processor) Process(stdout string, resolved *models.BGW) {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	var data payload
	if err := json.Unmarshal([]byte(stdout), &data); err != nil {
		logger.Error("result processor: invalid JSON, dropping", "err", err)
		return
	}

	lanIP := data.LanIP
	if lanIP == "" {
		lanIP = data.BGWIP
	}

	gw := resolved
	if gw == nil {
		if data.GWNumber == "" {
			logger.Error("result processor: no gw_number and no resolved gateway, dropping")
			return
		}
		found, ok := p.Stores.BGWs.Get(data.GWNumber)
		if !ok {
			logger.Error("result processor: unknown gw_number, dropping", "gw_number", data.GWNumber)
			return
		}
		gw = found
	}

	if lanIP != "" {
		if _, ok := p.Stores.GWs.Get(lanIP); !ok {
			p.Stores.GWs.Put(lanIP, data.GWNumber)
		}
	}

	unknown := gw.Update(models.UpdateInput{
		GWName:        data.GWName,
		GWNumber:      data.GWNumber,
		LastSessionID: data.LastSessID,
		LastSeen:      data.LastSeen,
		Commands:      data.Commands,
	})
	for _, cmd := range unknown {
		logger.Warn("result processor: unrecognized command in poll output", "command", cmd, "lan_ip", gw.LanIP)
	}

	activeSessionIDs := make(map[string]struct{})
	for globalID, raw := range data.RTPSessions {
		details, ok := parse.RTPStat(logger, globalID, raw)
		if !ok {
			continue
		}

		sessionKey := zeroPad(details.SessionID, 5)
		active := details.IsActive()
		if active {
			activeSessionIDs[sessionKey] = struct{}{}
		}

		if p.NokRTPOnly {
			if active {
				continue // watermark only, not persisted while active
			}
			if details.Nok() == models.NokNone {
				continue // healthy terminated session, not persisted
			}
		}
		p.Stores.RTPs.Put(globalID, details)
	}
	gw.ActiveSessionIDs = activeSessionIDs

	if gw.GWNumber != "" {
		p.Stores.BGWs.Put(gw.GWNumber, gw)
	}

	if p.OnChange != nil {
		p.OnChange()
	}
}

// zeroPad left-pads s with "0" to width n, mirroring Python's f"{id:0>5}".
func zeroPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
