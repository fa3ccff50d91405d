package command

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode"

	"github.com/you-win/sometimes-youwin-bot/internal/botconfig"
	"github.com/you-win/sometimes-youwin-bot/internal/metrics"
	"github.com/you-win/sometimes-youwin-bot/internal/scripting"
)

const (
	// defaultRollSides is used when the sides argument is missing or not a
	// number.
	defaultRollSides = 6

	scriptFence = "```"

	noMultilineReply = "That command doesn't work here, try it somewhere roomier."
	noScriptingReply = "Declining to run scripts on this platform."
	badFenceReply    = "Declining to run that: wrap the script in a fenced code block."
)

// ScriptRunner executes one sandboxed script. Implemented by
// scripting.Engine.
type ScriptRunner interface {
	Execute(source string, opBudget uint64) (string, error)
}

// Dispatcher parses and executes commands. It is safe for concurrent use.
type Dispatcher struct {
	prefix  string
	scripts ScriptRunner
}

// NewDispatcher creates a Dispatcher that strips the given prefix and hands
// script bodies to scripts.
func NewDispatcher(prefix string, scripts ScriptRunner) *Dispatcher {
	return &Dispatcher{prefix: prefix, scripts: scripts}
}

// Dispatch parses raw into exactly one command variant or a parse error.
// Ad-hoc commands from cfg are a fallback, consulted only after the built-in
// set failed to match; they can never shadow a built-in name.
func (d *Dispatcher) Dispatch(raw string, sender Sender, cfg botconfig.Config) Output {
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), d.prefix))

	name, rest := splitCommand(text)
	if name == "" {
		return d.parseError(sender, cfg, false)
	}

	out := d.dispatchNamed(name, rest, sender, cfg)
	d.count(sender, out)
	return out
}

func (d *Dispatcher) dispatchNamed(name, rest string, sender Sender, cfg botconfig.Config) Output {
	switch name {
	case "help", "--help", "-h":
		return d.parseError(sender, cfg, true)

	case "ping":
		return reply(KindPing, "pong")

	case "whoami":
		if sender.DisplayName == "" {
			// No identity to report; show usage instead of failing.
			return reply(KindWhoami, d.usage(cfg))
		}
		return reply(KindWhoami, fmt.Sprintf("You are %s!", sender.DisplayName))

	case "high-five", "highfive":
		return reply(KindHighFive, "👏")

	case "fancy-say", "fancysay", "cowsay":
		if !sender.Multiline {
			return reply(KindFancySay, noMultilineReply)
		}
		return reply(KindFancySay, FancySay(rest, cfg.MaxMessageWidth))

	case "roll":
		sides, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			sides = defaultRollSides
		}
		return reply(KindRoll, strconv.FormatUint(Roll(sides), 10))

	case "script":
		return d.runScript(rest, sender)

	case "admin":
		sub, _ := splitCommand(rest)
		if sub == "reload-config" {
			// The reply is nil on purpose: the reload happens
			// out-of-band, driven by the supervisor.
			return Output{Kind: KindAdmin, Admin: AdminReloadConfig}
		}
		return d.parseError(sender, cfg, false)

	default:
		if canned, ok := cfg.AdHocReply(name); ok {
			return reply(KindAdHoc, canned)
		}
		return d.parseError(sender, cfg, false)
	}
}

func (d *Dispatcher) runScript(body string, sender Sender) Output {
	if !sender.Scripting {
		return reply(KindScript, noScriptingReply)
	}

	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, scriptFence) || !strings.HasSuffix(body, scriptFence) || len(body) < 2*len(scriptFence) {
		return reply(KindScript, badFenceReply)
	}

	source := strings.TrimPrefix(body, scriptFence)
	source = strings.TrimSuffix(source, scriptFence)

	result, err := d.scripts.Execute(source, 0)
	if err != nil {
		// Engine errors are user text, never a dispatcher fault.
		outcome := "error"
		if errors.Is(err, scripting.ErrTooManyOps) {
			outcome = "budget"
		}
		metrics.ScriptExecutionsTotal.WithLabelValues(outcome).Inc()
		return reply(KindScript, err.Error())
	}

	metrics.ScriptExecutionsTotal.WithLabelValues("ok").Inc()
	return reply(KindScript, result)
}

// Roll returns a uniformly distributed integer in [1, sides]. Sides below 2
// are clamped to 2: a coin cannot have fewer than two faces.
func Roll(sides uint64) uint64 {
	if sides < 2 {
		sides = 2
	}
	return rand.N(sides) + 1
}

// usage renders the full help text, including the dynamically configured
// ad-hoc command names so operators discover custom commands.
func (d *Dispatcher) usage(cfg botconfig.Config) string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("  ping                  check that the bot is alive\n")
	b.WriteString("  whoami                repeat your display name back at you\n")
	b.WriteString("  high-five             receive a clap emoji\n")
	b.WriteString("  fancy-say <text>      frame text in a fancy speech bubble\n")
	b.WriteString("  roll [sides]          roll a die, default six sides\n")
	b.WriteString("  script <fenced code>  run a sandboxed script\n")
	b.WriteString("  admin reload-config   re-read config from the data channel\n")

	if names := cfg.AdHocNames(); len(names) > 0 {
		b.WriteString("Ad-hoc commands: ")
		b.WriteString(strings.Join(names, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) parseError(sender Sender, cfg botconfig.Config, isHelp bool) Output {
	if !isHelp {
		metrics.CommandErrorsTotal.WithLabelValues(string(sender.Platform)).Inc()
	}
	return Output{Err: d.usage(cfg), IsHelp: isHelp}
}

func (d *Dispatcher) count(sender Sender, out Output) {
	if out.IsError() {
		return
	}
	name := out.Kind.String()
	if out.Kind == KindAdmin {
		name = "admin " + out.Admin.String()
	}
	metrics.CommandsTotal.WithLabelValues(string(sender.Platform), name).Inc()
}

// splitCommand cuts the first whitespace-separated token off text and returns
// it with the untouched remainder. The remainder keeps its internal newlines,
// which script bodies depend on.
func splitCommand(text string) (name, rest string) {
	text = strings.TrimSpace(text)
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return text, ""
	}
	return text[:idx], strings.TrimSpace(text[idx:])
}
