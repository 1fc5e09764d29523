// Package script renders the opaque interactive-CLI program handed to the
// Process Runner for a given gateway. The program text itself (the
// expect-style dialog) is outside this system's scope (spec.md §1); this
// package only fills in the substitution variables, grounded on
// utils.py's create_bgw_script.
package script

import (
	"fmt"
	"sort"
	"strings"

	"github.com/netwatch/bgwmonitor/models"
)

// Template renders itself given a set of named variables. The concrete
// on-wire dialog program is supplied by the caller (an external
// configuration asset, not generated by this package) and is opaque: this
// package never inspects or reproduces its content.
type Template interface {
	Render(vars Vars) (string, error)
}

// Vars are the substitution variables a Template consumes, one-to-one with
// utils.py's template_args.
type Vars struct {
	LanIP                string
	User                 string
	Passwd               string
	PrevLastSessionID    string // already quoted, e.g. `"123"`
	PrevActiveSessionIDs string // e.g. `{"1" "2"}`
	RTPStats             int    // 0 discovery, 1 query
	Commands             string // e.g. `{"show system" "show faults"}`
	Debug                int
}

// Builder renders a gateway's poll script. Credentials and debug come from
// static configuration; everything else is read from the gateway itself.
type Builder struct {
	User, Passwd      string
	Debug             bool
	DiscoveryCommands []string
	QueryCommands     []string
}

// Build renders the script for one poll cycle against gw, dequeuing at
// most one batch of ad-hoc commands in the process (spec.md §4.2). Command
// list selection: discovery list if the gateway has never been seen,
// otherwise the query list with any dequeued ad-hoc commands *prepended*
// (DESIGN.md Open Question decision 2).
func (b *Builder) Build(gw *models.BGW, tmpl Template) (string, error) {
	vars := Vars{
		LanIP:  gw.LanIP,
		User:   b.User,
		Passwd: b.Passwd,
		Debug:  boolToInt(b.Debug),
	}

	if !gw.Seen() {
		vars.RTPStats = 0
		vars.PrevLastSessionID = quoted("")
		vars.PrevActiveSessionIDs = braceJoin(nil)
		vars.Commands = braceJoin(b.DiscoveryCommands)
		return tmpl.Render(vars)
	}

	vars.RTPStats = 1
	vars.PrevLastSessionID = quoted(gw.LastSessionID)
	vars.PrevActiveSessionIDs = braceJoin(sortedKeys(gw.ActiveSessionIDs))

	commands := append([]string{}, b.QueryCommands...)
	if adhoc := gw.DequeueCommands(); len(adhoc) > 0 {
		commands = append(append([]string{}, adhoc...), commands...)
	}
	vars.Commands = braceJoin(commands)

	return tmpl.Render(vars)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func quoted(s string) string {
	return `"` + s + `"`
}

func braceJoin(items []string) string {
	quotedItems := make([]string, len(items))
	for i, it := range items {
		quotedItems[i] = quoted(it)
	}
	return "{" + strings.Join(quotedItems, " ") + "}"
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TextTemplate is a Template backed by a single source string with
// "{{name}}" placeholders, filled by plain substring replacement (no
// text/template).
// Kept deliberately simple: the dialog program is opaque, so the only
// requirement is literal substring replacement, not a templating language.
type TextTemplate struct {
	Source string
}

// Render replaces each "{{name}}" placeholder with its Vars value. Unknown
// placeholders are left untouched rather than erroring, since the program
// text is owned by an external asset this package doesn't validate.
func (t TextTemplate) Render(v Vars) (string, error) {
	if t.Source == "" {
		return "", fmt.Errorf("script: empty template")
	}
	replacer := strings.NewReplacer(
		"{{bgw_ip}}", v.LanIP,
		"{{bgw_user}}", v.User,
		"{{bgw_passwd}}", v.Passwd,
		"{{prev_last_session_id}}", v.PrevLastSessionID,
		"{{prev_active_session_ids}}", v.PrevActiveSessionIDs,
		"{{rtp_stats}}", fmt.Sprintf("%d", v.RTPStats),
		"{{commands}}", v.Commands,
		"{{debug}}", fmt.Sprintf("%d", v.Debug),
	)
	return replacer.Replace(t.Source), nil
}
