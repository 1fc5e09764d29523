package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CaptureState is the base state of a gateway's on-device packet-capture
// subsystem, as tracked by the capture state machine in spec.md §4.6.
type CaptureState string

const (
	CaptureUnknown  CaptureState = ""
	CaptureNA       CaptureState = "NA"
	CaptureDisabled CaptureState = "disabled"
	CaptureInactive CaptureState = "inactive"
	CaptureRunning  CaptureState = "running"
	CaptureStopped  CaptureState = "stopped"
	CaptureStarting CaptureState = "starting"
	CaptureStopping CaptureState = "stopping"
)

// GatewayDerived holds the scalar values parsed out of the raw `show …`
// command text. Computed eagerly at ingestion (DESIGN NOTES §9 prefers this
// over lazy caching to simplify concurrency), field-for-field grounded on
// bgw.py's property catalogue.
type GatewayDerived struct {
	Model      string
	FW         string
	ChassisHW  string
	MainboardHW string
	Serial     string
	MAC        string
	Location   string
	Uptime     string
	CompFlash  string
	Memory     string
	PSU1       string
	PSU2       string
	CPUUtil    string
	RAMUtil    string
	Temp       string
	DSP        string
	InuseDSP   string
	Faults     string
	Announcements string
	LLDP       string
	PortRedu   string
	SNMP       string
	SNMPTrap   string
	SLAMonService string
	SLAServer  string
	RTPStatService string

	Port1       string
	Port1Status string
	Port1Neg    string
	Port1Duplex string
	Port1Speed  string
	Port2       string
	Port2Status string
	Port2Neg    string
	Port2Duplex string
	Port2Speed  string

	MM1, MM2, MM3, MM4, MM5, MM6, MM7, MM8, MM10 string

	ActiveSessionSummary string
	TotalSessionSummary  string
}

// BGW is a branch media gateway's full tracked state: identity, raw
// command text, derived scalars, the capture state machine, the pending
// ad-hoc command queue, and rolling poll statistics. Grounded on bgw.py's
// BGW class, restructured per spec.md §3/§9: eager derivation, a static
// command switch instead of dynamic setattr, and an explicit pending-batch
// queue instead of a bare Queue.
type BGW struct {
	LanIP       string
	Proto       string
	PollingSecs int
	GWName      string
	GWNumber    string

	Polls       int
	sumGapSecs  float64
	gapCount    int
	AvgPollSecs float64
	LastSeen    time.Time

	LastSessionID    string
	ActiveSessionIDs map[string]struct{}

	RawCommands map[string]string
	Derived     GatewayDerived

	CaptureState CaptureState
	CaptureRaw   string // last observed raw text, buffer suffix included

	pendingQueue [][]string // FIFO of ad-hoc command batches
}

// NewBGW constructs a freshly discovered gateway. GWNumber stays empty
// until the first successful poll resolves it.
func NewBGW(lanIP, proto string, pollingSecs int) *BGW {
	return &BGW{
		LanIP:            lanIP,
		Proto:            proto,
		PollingSecs:      pollingSecs,
		ActiveSessionIDs: make(map[string]struct{}),
		RawCommands:      make(map[string]string),
	}
}

// Seen reports whether this gateway has ever completed a poll. The Script
// Builder uses this to choose between discovery and query command lists
// (spec.md §4.2).
func (b *BGW) Seen() bool {
	return !b.LastSeen.IsZero()
}

// EnqueueCommands pushes one ad-hoc command batch onto the pending queue.
// The UI is the sole producer (spec.md §5).
func (b *BGW) EnqueueCommands(cmds []string) {
	if len(cmds) == 0 {
		return
	}
	batch := make([]string, len(cmds))
	copy(batch, cmds)
	b.pendingQueue = append(b.pendingQueue, batch)
}

// DequeueCommands pops at most one batch of ad-hoc commands, FIFO. The
// Script Builder is the sole consumer (spec.md §5) and calls this at most
// once per script render.
func (b *BGW) DequeueCommands() []string {
	if len(b.pendingQueue) == 0 {
		return nil
	}
	batch := b.pendingQueue[0]
	b.pendingQueue = b.pendingQueue[1:]
	return batch
}

// RequestCaptureStart transitions the capture state machine to "starting".
// Only the UI may call this — the poller never writes transitional states
// (spec.md §4.6).
func (b *BGW) RequestCaptureStart() {
	b.CaptureState = CaptureStarting
}

// RequestCaptureStop transitions the capture state machine to "stopping".
func (b *BGW) RequestCaptureStop() {
	b.CaptureState = CaptureStopping
}

// PacketCapture returns the user-visible capture state word. While a
// transition is in flight ("starting"/"stopping") it reflects the pending
// UI request rather than the last observed device state; RawCaptureText
// carries the full last-observed text, including any buffer-occupancy
// suffix, for callers that want the underlying detail (spec.md §4.6).
func (b *BGW) PacketCapture() string {
	return string(b.CaptureState)
}

// RawCaptureText returns the last raw "show capture" text observed from the
// device, independent of the state machine's current (possibly
// transitional) value.
func (b *BGW) RawCaptureText() string {
	return b.CaptureRaw
}

// UpdateInput is the parsed shape of a poll result's JSON payload, per the
// Result Processor contract in spec.md §4.5.
type UpdateInput struct {
	GWName        string
	GWNumber      string
	LastSessionID string
	LastSeen      string // "%Y-%m-%d,%H:%M:%S", empty if absent
	Commands      map[string]string
}

// Update applies one poll result to the gateway: identity fields, the
// rolling poll-gap average, and — for every recognized command — the raw
// text plus its eagerly re-derived scalar(s). Unknown command names are
// returned to the caller for logging rather than silently attached (the
// REDESIGN FLAG in spec.md §9 replacing dynamic setattr with a closed
// static switch).
//
// avg_poll_secs is implemented as the true arithmetic mean of all
// inter-arrival gaps seen so far (DESIGN.md Open Question decision 1),
// not the original's recursive running average.
func (b *BGW) Update(in UpdateInput) (unknownCommands []string) {
	if in.GWNumber != "" {
		b.GWNumber = in.GWNumber
	}
	if in.GWName != "" {
		b.GWName = in.GWName
	}
	b.LastSessionID = in.LastSessionID

	if in.LastSeen != "" {
		if seen, err := time.Parse(gatewayTimeLayout, in.LastSeen); err == nil {
			if !b.LastSeen.IsZero() {
				gap := seen.Sub(b.LastSeen).Seconds()
				if gap > 0 {
					b.sumGapSecs += gap
					b.gapCount++
					b.AvgPollSecs = roundTo1(b.sumGapSecs / float64(b.gapCount))
				}
			}
			b.LastSeen = seen
			b.Polls++
		}
	}

	for cmd, text := range in.Commands {
		if !applyCommand(b, cmd, text) {
			unknownCommands = append(unknownCommands, cmd)
		}
	}

	if text, ok := in.Commands[uploadStatusCommand]; ok && strings.Contains(text, "executing") {
		b.EnqueueCommands([]string{uploadStatusCommand})
	}

	return unknownCommands
}

// uploadStatusCommand polls the in-progress state of a capture upload
// triggered on the gateway. While the device reports "executing" the
// Result Processor keeps re-enqueuing the same status check (spec.md
// §4.5) so the next poll cycle checks again instead of losing track of it.
const uploadStatusCommand = "show upload status 10"

func roundTo1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

// applyCommand dispatches raw show-command text to the matching derivation,
// per the closed command set in spec.md's discovery_commands/query_commands.
// Returns false for a command name this gateway doesn't know how to handle.
func applyCommand(b *BGW, cmd, text string) bool {
	b.RawCommands[cmd] = text

	switch cmd {
	case "show running-config":
		deriveRunningConfig(b, text)
	case "show system":
		deriveSystem(b, text)
	case "show faults":
		deriveFaults(b, text)
	case "show capture":
		b.observeCapture(text)
	case "show voip-dsp":
		deriveVoipDSP(b, text)
	case "show temp":
		deriveTemp(b, text)
	case "show port":
		derivePort(b, text)
	case "show sla-monitor":
		deriveSLAMonitor(b, text)
	case "show utilization":
		deriveUtilization(b, text)
	case "show announcements files":
		deriveAnnouncements(b, text)
	case "show lldp config":
		deriveLLDP(b, text)
	case "show mg list":
		deriveMGList(b, text)
	case "show rtp-stat summary":
		deriveRTPStatSummary(b, text)
	case uploadStatusCommand:
		// no derived attribute; re-enqueue logic lives in Update.
	default:
		return false
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────
// Derivation: one function per command, grounded on bgw.py's properties.
// ─────────────────────────────────────────────────────────────────────────

var (
	reChassisVintage   = regexp.MustCompile(`Chassis HW Vintage\s+:\s+(\S+)`)
	reChassisSuffix    = regexp.MustCompile(`Chassis HW Suffix\s+:\s+(\S+)`)
	reMainboardVintage = regexp.MustCompile(`Mainboard HW Vintage\s+:\s+(\S+)`)
	reMainboardSuffix  = regexp.MustCompile(`Mainboard HW Suffix\s+:\s+(\S+)`)
	reHWVintage        = regexp.MustCompile(`HW Vintage\s+:\s+(\S+)`)
	reHWSuffix         = regexp.MustCompile(`HW Suffix\s+:\s+(\S+)`)
	reFlashMemory      = regexp.MustCompile(`Flash Memory\s+:\s+(.*)`)
	reFWVintage        = regexp.MustCompile(`FW Vintage\s+:\s+(\S+)`)
	reModel            = regexp.MustCompile(`Model\s+:\s+(\S+)`)
	reLocation         = regexp.MustCompile(`System Location\s+:\s+(\S+)`)
	reMAC              = regexp.MustCompile(`LAN MAC Address\s+:\s+(\S+)`)
	reMemoryLine       = regexp.MustCompile(`Memory #\d+\s+:\s+(\S+)`)
	reMemoryAmount     = regexp.MustCompile(`(\d+)([MG]B)`)
	rePSU1             = regexp.MustCompile(`PSU #1\s+:\s+\S+ (\S+)`)
	rePSU2             = regexp.MustCompile(`PSU #2\s+:\s+\S+ (\S+)`)
	reSerial           = regexp.MustCompile(`Serial No\s+:\s+(\S+)`)
	reUptime           = regexp.MustCompile(`Uptime \(\S+\)\s+:\s+(\S+)`)
	reDSPSockets       = regexp.MustCompile(`Media Socket .*?: M?P?(\d+) `)

	reFaultMarker = regexp.MustCompile(`\s+\+ (\S+)`)

	reCPUUtil = regexp.MustCompile(`10\s+(\d+)%\s+(\d+)%`)
	reRAMUtil = regexp.MustCompile(`10\s+\S+\s+\S+\s+(\d+)%`)

	reTemp = regexp.MustCompile(`Temperature\s+:\s+(\S+) \((\S+)\)`)

	reInUseDSP = regexp.MustCompile(`In Use\s+:\s+(\d+)`)

	rePortRedu = regexp.MustCompile(`port redundancy \d+/(\d+) \d+/(\d+)`)

	reSLAMonService = regexp.MustCompile(`SLA Monitor:\s+(\S+)`)
	reSLAServer     = regexp.MustCompile(`Registered Server IP Address:\s+(\S+)`)

	reSNMPTrap = regexp.MustCompile(`snmp-server bgw_ip \S+ traps`)

	reAvayaPortLine = regexp.MustCompile(`.*Avaya Inc`)
	rePortFields    = regexp.MustCompile(`.*?(?P<port>\d+/\d+).*?(?P<name>.*?).*?(?P<status>connected|no link).*?(?P<vlan>\d+).*?(?P<level>\d+).*?(?P<neg>\S+).*?(?P<duplex>\S+).*?(?P<speed>\S+)`)

	reMGLine = regexp.MustCompile(`^v(\d+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)`)

	reCaptureAdminRunning = regexp.MustCompile(`service is (\w+) and (\w+)`)
	reCaptureBuffer       = regexp.MustCompile(`\((\d+)%\)`)

	reRTPActiveSessions = regexp.MustCompile(`nal\s+\S+\s+(\S+)`)
	reRTPTotalSessions  = regexp.MustCompile(`nal\s+\S+\s+\S+\s+(\S+)`)
)

func firstMatch(re *regexp.Regexp, s string, group int, def string) string {
	m := re.FindStringSubmatch(s)
	if m == nil || group >= len(m) {
		return def
	}
	return m[group]
}

func deriveSystem(b *BGW, text string) {
	d := &b.Derived
	d.ChassisHW = firstMatch(reChassisVintage, text, 1, "?") + firstMatch(reChassisSuffix, text, 1, "?")
	d.MainboardHW = firstMatch(reMainboardVintage, text, 1, "?") + firstMatch(reMainboardSuffix, text, 1, "?")
	d.FW = firstMatch(reFWVintage, text, 1, "?")
	d.Model = firstMatch(reModel, text, 1, "?")
	d.Serial = firstMatch(reSerial, text, 1, "?")
	d.Location = firstMatch(reLocation, text, 1, "")
	d.MAC = strings.ReplaceAll(firstMatch(reMAC, text, 1, "?"), ":", "")
	d.PSU1 = firstMatch(rePSU1, text, 1, "")
	d.PSU2 = firstMatch(rePSU2, text, 1, "")

	if hwv := firstMatch(reHWVintage, text, 1, "?"); hwv != "" {
		d.ChassisHW = hwv + firstMatch(reHWSuffix, text, 1, "?")
	}

	if m := reFlashMemory.FindStringSubmatch(text); m != nil {
		if strings.Contains(m[1], "No") {
			d.CompFlash = ""
		} else {
			d.CompFlash = strings.ReplaceAll(m[1], " ", "")
		}
	} else {
		d.CompFlash = ""
	}

	total := 0
	for _, m := range reMemoryLine.FindAllStringSubmatch(text, -1) {
		total += toMByte(m[1])
	}
	d.Memory = strconv.Itoa(total) + "MB"

	if m := reUptime.FindStringSubmatch(text); m != nil {
		u := strings.Replace(m[1], ",", "d", 1)
		u = strings.Replace(u, ":", "h", 1)
		u = strings.Replace(u, ":", "m", 1)
		d.Uptime = u + "s"
	} else {
		d.Uptime = "?"
	}

	sum := 0
	any := false
	for _, m := range reDSPSockets.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			sum += n
			any = true
		}
	}
	if any {
		d.DSP = strconv.Itoa(sum)
	} else {
		d.DSP = "?"
	}
}

func toMByte(s string) int {
	m := reMemoryAmount.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	if m[2] == "GB" {
		return 1024 * n
	}
	return n
}

func deriveFaults(b *BGW, text string) {
	if strings.Contains(text, "No Fault Messages") {
		b.Derived.Faults = "0"
		return
	}
	b.Derived.Faults = strconv.Itoa(len(reFaultMarker.FindAllString(text, -1)))
}

func (b *BGW) observeCapture(text string) {
	b.applyCaptureObservation(text)
}

func deriveVoipDSP(b *BGW, text string) {
	inuse := 0
	for _, m := range reInUseDSP.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			inuse += n
		}
	}
	b.Derived.InuseDSP = strconv.Itoa(inuse)
}

func deriveTemp(b *BGW, text string) {
	m := reTemp.FindStringSubmatch(text)
	if m == nil {
		b.Derived.Temp = "?/?"
		return
	}
	b.Derived.Temp = m[1] + "/" + m[2]
}

func derivePort(b *BGW, text string) {
	lines := reAvayaPortLine.FindAllString(text, -1)
	assign := func(idx int) (port, status, neg, duplex, speed string) {
		port, status, neg, duplex, speed = "NA", "NA", "NA", "NA", "NA"
		if idx >= len(lines) {
			return
		}
		m := rePortFields.FindStringSubmatch(lines[idx])
		if m == nil {
			port, status, neg, duplex, speed = "?", "?", "?", "?", "?"
			return
		}
		names := rePortFields.SubexpNames()
		get := func(name string) string {
			for i, n := range names {
				if n == name && i < len(m) {
					return m[i]
				}
			}
			return "?"
		}
		return get("port"), get("status"), get("neg"), get("duplex"), get("speed")
	}
	d := &b.Derived
	d.Port1, d.Port1Status, d.Port1Neg, d.Port1Duplex, d.Port1Speed = assign(0)
	d.Port2, d.Port2Status, d.Port2Neg, d.Port2Duplex, d.Port2Speed = assign(1)
}

func deriveSLAMonitor(b *BGW, text string) {
	d := &b.Derived
	if m := reSLAMonService.FindStringSubmatch(text); m != nil {
		d.SLAMonService = strings.ToLower(m[1])
	} else {
		d.SLAMonService = "?"
	}
	d.SLAServer = firstMatch(reSLAServer, text, 1, "")
}

func deriveUtilization(b *BGW, text string) {
	if m := reCPUUtil.FindStringSubmatch(text); m != nil {
		b.Derived.CPUUtil = m[1] + "%/" + m[2] + "%"
	} else {
		b.Derived.CPUUtil = "?/?"
	}
	if m := reRAMUtil.FindStringSubmatch(text); m != nil {
		b.Derived.RAMUtil = m[1] + "%"
	} else {
		b.Derived.RAMUtil = ""
	}
}

func deriveAnnouncements(b *BGW, text string) {
	b.Derived.Announcements = strconv.Itoa(strings.Count(text, "announcement file"))
}

func deriveLLDP(b *BGW, text string) {
	if strings.Contains(text, "Application status: disable") {
		b.Derived.LLDP = "disabled"
	} else {
		b.Derived.LLDP = "enabled"
	}
}

func deriveRunningConfig(b *BGW, text string) {
	d := &b.Derived
	d.PortRedu = ""
	if m := rePortRedu.FindStringSubmatch(text); m != nil {
		d.PortRedu = m[1] + "/" + m[2]
	}

	d.RTPStatService = "disabled"
	if strings.Contains(text, "rtp-stat-service") {
		d.RTPStatService = "enabled"
	}

	var versions []string
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "snmp-server community") {
			versions = appendUnique(versions, "2")
		}
		if strings.HasPrefix(l, "encrypted-snmp-server community") {
			versions = appendUnique(versions, "3")
		}
	}
	if len(versions) > 0 {
		d.SNMP = "v" + strings.Join(versions, "&")
	} else {
		d.SNMP = ""
	}

	if reSNMPTrap.MatchString(text) {
		d.SNMPTrap = "enabled"
	} else {
		d.SNMPTrap = "disabled"
	}
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func deriveMGList(b *BGW, text string) {
	type slot struct{ typ, code, suffix, hwVint string }
	slots := make(map[string]slot)
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		if !strings.HasPrefix(l, "v") || strings.Contains(l, "Not Installed") {
			continue
		}
		m := reMGLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		slots["v"+m[1]] = slot{typ: m[2], code: m[3], suffix: m[4], hwVint: m[5]}
	}
	mmv := func(n int) string {
		s, ok := slots["v"+strconv.Itoa(n)]
		if !ok {
			return ""
		}
		code := s.code
		if code == "ICC" {
			code = s.typ
		}
		return code + s.suffix
	}
	d := &b.Derived
	d.MM1, d.MM2, d.MM3, d.MM4 = mmv(1), mmv(2), mmv(3), mmv(4)
	d.MM5, d.MM6, d.MM7, d.MM8 = mmv(5), mmv(6), mmv(7), mmv(8)
	if s, ok := slots["v10"]; ok {
		d.MM10 = s.hwVint + s.suffix
	} else {
		d.MM10 = ""
	}
}

func deriveRTPStatSummary(b *BGW, text string) {
	b.Derived.ActiveSessionSummary = firstMatch(reRTPActiveSessions, text, 1, "?/?")
	b.Derived.TotalSessionSummary = firstMatch(reRTPTotalSessions, text, 1, "?/?")
}

// applyCaptureObservation implements the capture state machine of spec.md
// §4.6. It extracts a base state word from the raw "show capture" text and
// advances b.CaptureState only along the legal transitions; the full text
// (base state plus any "(NN%)" buffer suffix) is always retained in
// CaptureRaw, where RawCaptureText() and CaptureBufferPercent() read it.
func (b *BGW) applyCaptureObservation(raw string) {
	b.CaptureRaw = raw
	observed := observedBaseState(raw)

	switch {
	case observed == CaptureNA:
		b.CaptureState = CaptureNA
		return
	case observed == CaptureUnknown:
		return
	}

	switch b.CaptureState {
	case CaptureStarting:
		if observed == CaptureRunning {
			b.CaptureState = CaptureRunning
		}
	case CaptureStopping:
		if observed == CaptureStopped {
			b.CaptureState = CaptureStopped
		}
	case CaptureUnknown, CaptureNA:
		b.CaptureState = observed
	case CaptureRunning:
		if observed == CaptureStopped {
			b.CaptureState = CaptureStopped
		}
	case CaptureStopped:
		if observed == CaptureRunning {
			b.CaptureState = CaptureRunning
		}
	case CaptureDisabled, CaptureInactive:
		b.CaptureState = observed
	}
}

// observedBaseState extracts the base capture state word from raw "show
// capture" text, grounded on bgw.py's capture_service regex (`service is
// (\w+) and (\w+)`), remapped onto spec.md's explicit state enum.
func observedBaseState(raw string) CaptureState {
	if raw == "" {
		return CaptureUnknown
	}
	if strings.Contains(raw, "NA") {
		return CaptureNA
	}
	m := reCaptureAdminRunning.FindStringSubmatch(raw)
	if m == nil {
		return CaptureUnknown
	}
	admin, running := m[1], m[2]
	if admin == "disabled" {
		return CaptureDisabled
	}
	switch {
	case strings.Contains(running, "running"):
		return CaptureRunning
	case strings.Contains(running, "stopped"):
		return CaptureStopped
	case strings.Contains(running, "inactive"):
		return CaptureInactive
	}
	return CaptureUnknown
}

// CaptureBufferPercent extracts the "(NN%)" buffer-occupancy suffix from the
// last observed capture text, if present.
func (b *BGW) CaptureBufferPercent() (int, bool) {
	m := reCaptureBuffer.FindStringSubmatch(b.CaptureRaw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
