// Package dispatch implements the inbound SMS dispatcher (C4): decoding a
// received message, resolving the sender's credentials, running either a
// built-in verb or an external command, and queuing the reply.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/psmsgw/smsgwd/internal/command"
	"github.com/psmsgw/smsgwd/internal/gsmtext"
	"github.com/psmsgw/smsgwd/internal/loadavg"
	"github.com/psmsgw/smsgwd/internal/users"
	"github.com/psmsgw/smsgwd/internal/xmsg"
)

// Sender enqueues an outbound SMS to a phone number. It is satisfied by
// the daemon's top-level send function, which also knows how to resolve
// "*" (broadcast) and user names.
type Sender interface {
	Send(to, msg string) error
}

// Dispatcher wires the user store and external command table into the
// inbound message handler.
type Dispatcher struct {
	Users    *users.Store
	Commands *command.Table
	Log      *slog.Logger

	Sender Sender
}

// New creates a Dispatcher. sender is used to deliver replies and is
// typically backed by the same broadcaster the daemon hands to its local
// ingress endpoints.
func New(us *users.Store, cmds *command.Table, sender Sender, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{Users: us, Commands: cmds, Sender: sender, Log: log}
}

// HandleInbound is the channel's InboundFunc: it decodes one received SMS
// and runs it as a command, replying to phone with whatever text the
// command produces. A reply is only sent if the resulting text is
// non-empty, mirroring the original's "only send back something when
// there is something to say" behavior.
func (d *Dispatcher) HandleInbound(ctx context.Context, payloadHex, phone, date string) {
	msg := gsmtext.GSMHexToLatin1(payloadHex)
	reply := d.runMessage(ctx, msg, phone, date)
	if reply == "" {
		return
	}
	if err := d.Sender.Send(phone, reply); err != nil {
		d.Log.Warn("failed to send reply", "phone", phone, "error", err)
	}
}

// runMessage is the text-command interpreter at the heart of the
// dispatcher: it resolves phone's credentials, strips a leading
// "[password]" silent-login token, and then tries, in order, the built-in
// verbs, the external command table, and finally a "What?" fallback for
// any caller with at least phone-level trust.
func (d *Dispatcher) runMessage(ctx context.Context, msg, phone, date string) string {
	cred := d.Users.GetCreds(phone)

	msg = firstLine(msg)
	argv := splitFields(msg)
	if len(argv) == 0 {
		return ""
	}

	// A leading "[password]" token silently logs the caller back in as
	// their own name, without requiring a separate Login command.
	if cred.Name != "" {
		if pw, ok := bracketedToken(argv[0]); ok {
			if !d.Users.Login(phone, cred.Name, pw) {
				return "Invalid password"
			}
			cred = d.Users.GetCreds(phone)
			argv = argv[1:]
			if len(argv) == 0 {
				return ""
			}
		}
	}

	verb := argv[0]

	switch {
	case strings.EqualFold(verb, "Help"):
		return d.help(cred)

	case strings.EqualFold(verb, "Whoami"):
		return d.whoami(cred)

	case strings.EqualFold(verb, "Login"):
		return d.login(phone, argv, cred)

	case cred.Level > 1 && strings.EqualFold(verb, "Logout"):
		if d.Users.Logout(phone) {
			return "Logout OK"
		}
		if cred.Name != "" {
			return "Logout denied!"
		}
		return ""

	case cred.Level > 0 && strings.EqualFold(verb, "LoadAvg"):
		return loadAvgReply()

	case cred.Level > 0 && strings.EqualFold(verb, "Users"):
		return d.usersReply()
	}

	if cred.Level > 0 {
		caller := command.Caller{Name: cred.Name, Phone: phone, Date: date, Level: cred.Level, ACL: cred.ACL}
		out, err := d.Commands.Run(ctx, caller, argv, strings.Join(argv[1:], " "))
		if err == nil {
			return out
		}
		d.Log.Debug("external command not run", "verb", verb, "error", err)
	}

	if cred.Level > 0 {
		return fmt.Sprintf("What?\r(%s)", msg)
	}
	return ""
}

func (d *Dispatcher) help(cred users.Cred) string {
	var parts []string
	parts = append(parts, "Help", "Whoami", "Login")
	if cred.Level > 0 {
		parts = append(parts, "LoadAvg", "Users")
	}
	if cred.Level > 1 {
		parts = append(parts, "Logout")
	}
	parts = append(parts, d.Commands.Names(cred.Level, cred.ACL)...)
	return strings.Join(parts, ",")
}

func (d *Dispatcher) whoami(cred users.Cred) string {
	var b strings.Builder
	b.WriteString(cred.Phone)
	if cred.Level > 0 {
		b.WriteString(" ")
		if cred.Level < 2 {
			b.WriteString("(")
		}
		b.WriteString(cred.Name)
		if cred.Level < 2 {
			b.WriteString(")")
		}
	}
	return b.String()
}

func (d *Dispatcher) login(phone string, argv []string, cred users.Cred) string {
	if len(argv) < 3 {
		if cred.Name != "" {
			return "Login denied!"
		}
		return ""
	}
	if !d.Users.Login(phone, argv[1], argv[2]) {
		if cred.Name != "" {
			return "Login denied!"
		}
		return ""
	}
	return "Login OK"
}

func loadAvgReply() string {
	one, five, fifteen, ok := loadavg.Get()
	if !ok {
		return "No load averages"
	}
	return fmt.Sprintf("%.2f/%.2f/%.2f", one, five, fifteen)
}

// usersReply lists every currently logged-in session, one
// "<name> <current_phone>" line per user, matching the original's
// users_list output.
func (d *Dispatcher) usersReply() string {
	var b strings.Builder
	d.Users.ForEach(func(r users.Record) {
		if r.CurrentPhone == "" {
			return
		}
		fmt.Fprintf(&b, "%s %s\n", r.Name, r.CurrentPhone)
	})
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return s
}

func splitFields(s string) []string {
	return strings.FieldsFunc(s, unicode.IsSpace)
}

// bracketedToken reports whether tok has the form "[...]" with at least
// one character inside, returning the inner text.
func bracketedToken(tok string) (string, bool) {
	if len(tok) > 2 && strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		return tok[1 : len(tok)-1], true
	}
	return "", false
}

// smsPayloadLimit is the maximum number of GSM-7 characters a single SMS
// can carry; longer outbound text is silently truncated rather than
// rejected or split across multiple messages.
const smsPayloadLimit = 160

// EncodeOutbound wraps an outgoing message's AT command and payload for
// the transmit queue: `+CMGS="<phone>"` with the hex-encoded GSM-7
// payload as the XMSG's Data, truncated to smsPayloadLimit characters.
func EncodeOutbound(phone, msg string) *xmsg.XMSG {
	return &xmsg.XMSG{
		Cmd:  fmt.Sprintf(`+CMGS="%s"`, phone),
		Data: gsmtext.LatinToGSMHex(truncateRunes(msg, smsPayloadLimit)),
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
