// Package logging provides the slog handler used by the binaries.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// JSONHandler is a slog.Handler that writes one JSON object per record,
// indented when Pretty is set. Non-finite floats (the -Inf used for illegal
// moves) are written as strings so a Q-value vector never breaks a line.
type JSONHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool
	pretty    bool

	attrs  []slog.Attr
	groups []string
}

// Options extends slog.HandlerOptions with the indentation switch.
type Options struct {
	slog.HandlerOptions
	Pretty bool
}

func NewJSONHandler(w io.Writer, opts *Options) *JSONHandler {
	h := &JSONHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
		h.pretty = opts.Pretty
	}
	return h
}

// Setup installs a JSONHandler on stderr as the default logger.
func Setup(level string, pretty bool) *slog.Logger {
	logger := slog.New(NewJSONHandler(os.Stderr, &Options{
		HandlerOptions: slog.HandlerOptions{Level: ParseLevel(level)},
		Pretty:         pretty,
	}))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps debug/info/warn/error to a level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (h *JSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JSONHandler) Handle(_ context.Context, r slog.Record) error {
	payload := make(map[string]any, 4+r.NumAttrs())

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	payload["time"] = when.Format(time.RFC3339Nano)
	payload["level"] = r.Level.String()
	payload["msg"] = r.Message
	if h.addSource {
		if src := sourceFromPC(r.PC); src != "" {
			payload["source"] = src
		}
	}

	for _, a := range h.attrs {
		addAttr(payload, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(payload, h.groups, a)
		return true
	})

	var (
		b   []byte
		err error
	)
	if h.pretty {
		b, err = json.MarshalIndent(payload, "", "  ")
	} else {
		b, err = json.Marshal(payload)
	}
	if err != nil {
		b = []byte(fmt.Sprintf(`{"time":%s,"level":%s,"msg":%s,"log_error":%s}`,
			strconv.Quote(payload["time"].(string)),
			strconv.Quote(r.Level.String()),
			strconv.Quote(r.Message),
			strconv.Quote(err.Error())))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *JSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *JSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func addAttr(root map[string]any, groups []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	dst := root
	for _, g := range groups {
		m, ok := dst[g].(map[string]any)
		if !ok {
			m = map[string]any{}
			dst[g] = m
		}
		dst = m
	}
	put(dst, attr)
}

func put(dst map[string]any, attr slog.Attr) {
	v := attr.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if attr.Key == "" {
			for _, ga := range v.Group() {
				put(dst, ga)
			}
			return
		}
		child := map[string]any{}
		for _, ga := range v.Group() {
			put(child, ga)
		}
		dst[attr.Key] = child
		return
	}
	dst[attr.Key] = toJSON(v)
}

func toJSON(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return finite(v.Float64())
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		case [4]float64:
			out := make([]any, len(x))
			for i, f := range x {
				out[i] = finite(f)
			}
			return out
		case []float64:
			out := make([]any, len(x))
			for i, f := range x {
				out[i] = finite(f)
			}
			return out
		default:
			return x
		}
	}
	return v.String()
}

func finite(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func sourceFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}
