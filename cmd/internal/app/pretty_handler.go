package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiPattern.ReplaceAllString(s, "") }

// prettyHandler writes one key=value line per record for interactive use.
// Session and stream states are colored so transitions stand out in `watch`.
// Attributes added through WithAttrs are rendered once, when they are added.
type prettyHandler struct {
	sink   *lineSink
	level  slog.Leveler
	color  bool
	prefix string // dotted group path for attributes added later
	fixed  string // pre-rendered WithAttrs attributes
}

// lineSink serializes whole lines from every handler derived from one root.
type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *lineSink) write(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, line)
	return err
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &prettyHandler{sink: &lineSink{w: w}, level: level, color: color}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", h.paint(ansiDim, at.Format("15:04:05.000")), h.levelTag(r.Level), h.paint(ansiBright, r.Message))
	b.WriteString(h.fixed)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a, h.prefix)
		return true
	})
	b.WriteByte('\n')
	return h.sink.write(b.String())
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	b.WriteString(h.fixed)
	for _, a := range attrs {
		h.appendAttr(&b, a, h.prefix)
	}
	next := *h
	next.fixed = b.String()
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	next := *h
	next.prefix = joinKey(h.prefix, name)
	return &next
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// appendAttr writes " key=value", flattening groups into dotted keys.
func (h *prettyHandler) appendAttr(b *strings.Builder, a slog.Attr, prefix string) {
	v := a.Value.Resolve()
	key := strings.TrimSpace(a.Key)

	if v.Kind() == slog.KindGroup {
		// Inline groups (empty key) keep the parent prefix.
		if key != "" {
			prefix = joinKey(prefix, key)
		}
		for _, ga := range v.Group() {
			h.appendAttr(b, ga, prefix)
		}
		return
	}
	if key == "" {
		return
	}
	key = joinKey(prefix, key)
	fmt.Fprintf(b, " %s%s", h.paint(ansiDim, key+"="), h.prettyValue(key, v))
}

func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	plain := quote(plainValue(v))
	if !h.color {
		return plain
	}

	switch key[strings.LastIndexByte(key, '.')+1:] {
	case "state", "from", "to":
		return h.paint(stateColor(v.String()), plain)
	case "err":
		return h.paint(ansiRed, plain)
	case "status":
		if code, ok := statusCode(v); ok {
			return h.paint(statusColor(code), plain)
		}
	case "method", "path":
		return h.paint(ansiCyan, plain)
	}
	return plain
}

// stateColor maps session and stream states to a color: settled states green,
// transitional yellow, terminal red.
func stateColor(state string) string {
	switch state {
	case "authenticated", "open":
		return ansiGreen
	case "authenticating", "connecting", "reconnecting":
		return ansiYellow
	case "session_expired", "stopped":
		return ansiRed
	default:
		return ansiMagenta
	}
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func (h *prettyHandler) levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, "ERROR")
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, "WARN ")
	case level < slog.LevelInfo:
		return h.paint(ansiMagenta, "DEBUG")
	default:
		return h.paint(ansiBlue, "INFO ")
	}
}

func (h *prettyHandler) paint(code, s string) string {
	if !h.color {
		return s
	}
	return code + s + ansiReset
}

func statusCode(v slog.Value) (int, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return int(v.Int64()), true
	case slog.KindUint64:
		return int(v.Uint64()), true
	case slog.KindString:
		n, err := strconv.Atoi(strings.TrimSpace(v.String()))
		return n, err == nil
	default:
		return 0, false
	}
}

// plainValue is slog's own rendering, except times use RFC 3339 and floats
// drop trailing zeros.
func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	default:
		return v.String()
	}
}

// quote wraps values that would break key=value splitting.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
