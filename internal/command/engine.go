// Package command implements the external command engine (C6): a table of
// named commands mapped to an executable path and argument template, each
// gated by a minimum trust level and the caller's ACL, and run as a
// subprocess under a configured uid/gid.
package command

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Definition is one row of the external command table: a name, a minimum
// trust level, the system user to run as ("=" means "run as the SMS
// user's own unix account, if one exists"), the executable path, and an
// argv template string expanded per invocation.
type Definition struct {
	Name    string
	Level   int
	RunAs   string
	Path    string
	ArgTmpl string
}

// Table is a reloadable, concurrency-safe external command table.
type Table struct {
	mu   sync.RWMutex
	defs []Definition
}

// NewTable creates an empty command table.
func NewTable() *Table { return &Table{} }

// Load replaces the table's contents from a whitespace-delimited file:
// each line is "name level user path argv...", where level is either an
// integer or one of "*"/"all" (0), "phone" (1), "login" (2); any other
// token defaults to 3 (unreachable by normal dispatch, matching the
// original loader's behavior for a malformed level field).
func (t *Table) Load(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open command file %s", path)
	}
	defer f.Close()

	var defs []Definition
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 4 {
			continue
		}
		name, levelTok, runAs, cmdPath := fields[0], fields[1], fields[2], fields[3]

		var argTmpl string
		if len(fields) > 4 {
			idx := 0
			for _, f := range fields[:4] {
				idx += strings.Index(line[idx:], f) + len(f)
			}
			argTmpl = strings.TrimSpace(line[idx:])
		}

		defs = append(defs, Definition{
			Name:    name,
			Level:   parseLevel(levelTok),
			RunAs:   runAs,
			Path:    cmdPath,
			ArgTmpl: argTmpl,
		})
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "scan command file")
	}

	t.mu.Lock()
	t.defs = defs
	t.mu.Unlock()

	return len(defs), nil
}

func parseLevel(tok string) int {
	if n, err := strconv.Atoi(tok); err == nil {
		return n
	}
	switch tok {
	case "*", "all":
		return 0
	case "phone":
		return 1
	case "login":
		return 2
	default:
		return 3
	}
}

// Names returns the names of commands the given level and acl together
// permit, in table order.
func (t *Table) Names(level int, acl string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var names []string
	for _, d := range t.defs {
		if level >= d.Level && aclAllows(acl, d.Name) {
			names = append(names, d.Name)
		}
	}
	return names
}

func aclAllows(acl, name string) bool {
	if acl == "" {
		return false
	}
	if acl == "*" {
		return true
	}
	for _, p := range strings.Split(acl, "|") {
		if strings.EqualFold(strings.TrimSpace(p), name) {
			return true
		}
	}
	return false
}

// Caller carries the context Run needs to expand an argument template and
// to choose which unix account to run under.
type Caller struct {
	Name  string // logged-in user name, "" if none
	Phone string
	Date  string
	Level int
	ACL   string
}

// nobodyUID is the fixed nobody-equivalent uid/gid external commands run
// under when the configured RunAs account cannot be resolved.
const nobodyUID = 60001

// lookupUID resolves a RunAs token ("=" maps to caller.Name) to a uid/gid
// pair. If the account cannot be resolved — including "=" when the caller
// is not logged in — it falls back to the fixed nobody-equivalent
// uid=gid=60001, matching the original's behavior of never simply
// running a command unsandboxed when account lookup fails.
func lookupUID(runAs, callerName string) (uid, gid uint32) {
	name := runAs
	if runAs == "=" {
		name = callerName
	}
	if name == "" {
		return nobodyUID, nobodyUID
	}

	u, err := user.Lookup(name)
	if err != nil {
		return nobodyUID, nobodyUID
	}
	uid64, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nobodyUID, nobodyUID
	}
	gid64, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nobodyUID, nobodyUID
	}
	return uint32(uid64), uint32(gid64)
}

// Run finds the named command, checks level and ACL, expands its argument
// template against caller and argv, and executes it as a subprocess under
// the resolved uid/gid with stdin set to payload and a 30 second deadline.
// It returns the command's standard output (stderr is discarded), also when
// the command exits non-zero, or an error if the command is unknown, not
// permitted, or cannot be started.
func (t *Table) Run(ctx context.Context, caller Caller, argv []string, payload string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	name := argv[0]

	t.mu.RLock()
	var def *Definition
	for i := range t.defs {
		if strings.EqualFold(t.defs[i].Name, name) {
			d := t.defs[i]
			def = &d
			break
		}
	}
	t.mu.RUnlock()

	if def == nil {
		return "", errors.Errorf("no such command %q", name)
	}
	if caller.Level < def.Level || !aclAllows(caller.ACL, def.Name) {
		return "", errors.Errorf("command %q not permitted at level %d", name, caller.Level)
	}

	uid, gid := lookupUID(def.RunAs, caller.Name)

	escapes := func(esc string) string {
		switch esc {
		case "P", "phone":
			return caller.Phone
		case "D", "date":
			return caller.Date
		case "U", "user":
			return caller.Name
		case "*":
			return GetRange(argv, 1, 0)
		}
		if strings.HasPrefix(esc, "-") {
			if stop, err := strconv.Atoi(strings.TrimPrefix(esc, "-")); err == nil {
				return GetRange(argv, 1, stop)
			}
		}
		if i, err := strconv.Atoi(esc); err == nil {
			return Get(argv, i)
		}
		if strings.HasSuffix(esc, "-") {
			start, err := strconv.Atoi(strings.TrimSuffix(esc, "-"))
			if err == nil {
				return GetRange(argv, start, 0)
			}
		}
		if parts := strings.SplitN(esc, "-", 2); len(parts) == 2 {
			start, err1 := strconv.Atoi(parts[0])
			stop, err2 := strconv.Atoi(parts[1])
			if err1 == nil && err2 == nil {
				return GetRange(argv, start, stop)
			}
		}
		return ""
	}

	cmdArgv := Tokenize(def.ArgTmpl, escapes)

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, def.Path, cmdArgv...)
	cmd.Stdin = strings.NewReader(payload)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uid, Gid: gid},
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", errors.Wrapf(err, "run external command %s", name)
		}
	}
	return out.String(), nil
}
