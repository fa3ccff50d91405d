// Package command turns free chat text into a typed command and a reply.
// Dispatch is pure computation: no I/O, no network, the only side effects are
// RNG draws and bounded script execution.
package command

// Platform identifies where a message came from.
type Platform string

const (
	PlatformDiscord Platform = "discord"
	PlatformTwitch  Platform = "twitch"
	PlatformHTTP    Platform = "http"
)

// Sender is the platform-neutral context for a dispatch call. Platform-native
// objects never cross into the dispatcher; adapters reduce them to this.
type Sender struct {
	Platform    Platform
	DisplayName string

	// Multiline is true on platforms that can render framed multi-line
	// replies.
	Multiline bool
	// Scripting is true on platforms allowed to run sandboxed scripts.
	Scripting bool
}

// Kind is the closed set of built-in commands.
type Kind int

const (
	KindNone Kind = iota
	KindPing
	KindWhoami
	KindHighFive
	KindFancySay
	KindRoll
	KindAdHoc
	KindScript
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindWhoami:
		return "whoami"
	case KindHighFive:
		return "high-five"
	case KindFancySay:
		return "fancy-say"
	case KindRoll:
		return "roll"
	case KindAdHoc:
		return "ad-hoc"
	case KindScript:
		return "script"
	case KindAdmin:
		return "admin"
	default:
		return "none"
	}
}

// AdminKind is the closed set of admin subcommands.
type AdminKind int

const (
	AdminNone AdminKind = iota
	AdminReloadConfig
)

func (a AdminKind) String() string {
	if a == AdminReloadConfig {
		return "reload-config"
	}
	return "none"
}

// Output is the result of one dispatch. Exactly one of the three shapes
// holds: a command with an optional reply, an admin command with an optional
// reply, or a parse error carrying rendered usage text.
type Output struct {
	Kind  Kind
	Admin AdminKind

	// Reply is the platform-visible reply text. nil means the command has
	// no visible effect (admin actions that mutate state out-of-band).
	Reply *string

	// Err holds the rendered usage text when parsing failed. IsHelp
	// distinguishes "user asked for help" from "user made a mistake".
	Err    string
	IsHelp bool
}

// IsError reports whether the output is a parse error.
func (o Output) IsError() bool {
	return o.Err != ""
}

// ReplyOrDefault returns the reply text, the error text for parse errors, or
// fallback when the command produced no visible reply.
func (o Output) ReplyOrDefault(fallback string) string {
	if o.IsError() {
		return o.Err
	}
	if o.Reply == nil {
		return fallback
	}
	return *o.Reply
}

func reply(k Kind, text string) Output {
	return Output{Kind: k, Reply: &text}
}
