package logger

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type kind uint8

const (
	kindString kind = iota
	kindInt
	kindFloat
	kindBool
	kindError
	kindAny
)

// Field is one typed key/value pair. The zero Field is ignored.
type Field struct {
	key  string
	kind kind
	s    string
	i    int64
	f    float64
	b    bool
	err  error
	v    interface{}
}

func (f Field) event(e *zerolog.Event) {
	if f.key == "" {
		return
	}
	switch f.kind {
	case kindString:
		e.Str(f.key, f.s)
	case kindInt:
		e.Int64(f.key, f.i)
	case kindFloat:
		e.Float64(f.key, f.f)
	case kindBool:
		e.Bool(f.key, f.b)
	case kindError:
		if f.err != nil {
			e.AnErr(f.key, f.err)
		}
	default:
		e.Interface(f.key, f.v)
	}
}

func (f Field) context(c zerolog.Context) zerolog.Context {
	if f.key == "" {
		return c
	}
	switch f.kind {
	case kindString:
		return c.Str(f.key, f.s)
	case kindInt:
		return c.Int64(f.key, f.i)
	case kindFloat:
		return c.Float64(f.key, f.f)
	case kindBool:
		return c.Bool(f.key, f.b)
	case kindError:
		if f.err == nil {
			return c
		}
		return c.AnErr(f.key, f.err)
	default:
		return c.Interface(f.key, f.v)
	}
}

func String(key, value string) Field          { return Field{key: key, kind: kindString, s: value} }
func Int(key string, value int) Field         { return Field{key: key, kind: kindInt, i: int64(value)} }
func Int64(key string, value int64) Field     { return Field{key: key, kind: kindInt, i: value} }
func Float64(key string, value float64) Field { return Field{key: key, kind: kindFloat, f: value} }
func Bool(key string, value bool) Field       { return Field{key: key, kind: kindBool, b: value} }
func Any(key string, value interface{}) Field { return Field{key: key, kind: kindAny, v: value} }

// Error logs err under "error". A nil error adds nothing.
func Error(err error) Field { return Field{key: "error", kind: kindError, err: err} }

// Duration is logged in whole milliseconds.
func Duration(key string, value time.Duration) Field { return Int64(key, value.Milliseconds()) }

func Time(key string, value time.Time) Field {
	return String(key, value.UTC().Format(time.RFC3339))
}

func Strings(key string, value []string) Field {
	return String(key, strings.Join(value, ", "))
}
