// Package nlog is the communicator's logger: buffered, timestamped,
// severity-leveled writing to a rotated file or to stderr.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const sevChars = "IWE"

const maxFileSize = 64 * 1024 * 1024

type nlog struct {
	mw   sync.Mutex
	w    *bufio.Writer
	file *os.File
	sev  severity
	n    int64
}

var (
	nlogs = [3]*nlog{
		sevInfo: {sev: sevInfo},
		sevWarn: {sev: sevWarn},
		sevErr:  {sev: sevErr},
	}

	toStderr     bool
	alsoToStderr bool

	logDir, aisrole, title string

	once sync.Once
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func SetLogDirRole(dir, role string) { logDir, aisrole = dir, role }
func SetTitle(s string)              { title = s }

func sname() string {
	if aisrole == "" {
		return filepath.Base(os.Args[0])
	}
	return aisrole
}

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

func InfoDepth(depth int, args ...any)    { logf(sevInfo, depth+1, "", args...) }
func Infoln(args ...any)                  { logf(sevInfo, 1, "", args...) }
func Infof(format string, args ...any)    { logf(sevInfo, 1, format, args...) }
func Warningln(args ...any)               { logf(sevWarn, 1, "", args...) }
func Warningf(format string, args ...any) { logf(sevWarn, 1, format, args...) }
func ErrorDepth(depth int, args ...any)   { logf(sevErr, depth+1, "", args...) }
func Errorln(args ...any)                 { logf(sevErr, 1, "", args...) }
func Errorf(format string, args ...any)   { logf(sevErr, 1, format, args...) }

// main entry point: writes to its own severity file and, for Warn/Err, also
// appends to the Info file, matching the historical convention that the INFO
// log is the superset.
func logf(sev severity, depth int, format string, args ...any) {
	once.Do(openAll)

	line := format1(sev, depth+1, format, args...)

	if toStderr {
		os.Stderr.WriteString(line)
		return
	}
	if alsoToStderr || sev >= sevErr {
		os.Stderr.WriteString(line)
	}

	nlogs[sev].write(line)
	if sev != sevInfo {
		nlogs[sevInfo].write(line)
	}
}

func (nl *nlog) write(line string) {
	nl.mw.Lock()
	defer nl.mw.Unlock()
	if nl.w == nil {
		nl.w = bufio.NewWriter(os.Stderr)
	}
	n, _ := nl.w.WriteString(line)
	nl.n += int64(n)
	if nl.n >= maxFileSize {
		nl.rotateLocked()
	}
}

func openAll() {
	for _, nl := range nlogs {
		nl.open()
	}
}

func (nl *nlog) open() {
	nl.mw.Lock()
	defer nl.mw.Unlock()
	if logDir == "" {
		nl.w = bufio.NewWriter(os.Stderr)
		return
	}
	tag := "INFO"
	if nl.sev == sevWarn {
		tag = "WARNING"
	} else if nl.sev == sevErr {
		tag = "ERROR"
	}
	f, err := os.OpenFile(filepath.Join(logDir, sname()+"."+tag+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		nl.w = bufio.NewWriter(os.Stderr)
		return
	}
	nl.file = f
	nl.w = bufio.NewWriter(f)
	if title != "" {
		nl.w.WriteString(title + "\n")
	}
}

// caller holds nl.mw
func (nl *nlog) rotateLocked() {
	if nl.w != nil {
		nl.w.Flush()
	}
	if nl.file == nil {
		return
	}
	nl.file.Close()
	nl.n = 0
	rotated := nl.file.Name() + "." + time.Now().Format("0102-150405")
	os.Rename(nl.file.Name(), rotated)
	f, err := os.OpenFile(nl.file.Name(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		nl.w = bufio.NewWriter(os.Stderr)
		return
	}
	nl.file = f
	nl.w = bufio.NewWriter(f)
}

// Flush writes all buffered log data to its underlying files. When exit is
// true it also closes the underlying file descriptors (used right before
// os.Exit).
func Flush(exit ...bool) {
	doExit := len(exit) > 0 && exit[0]
	for _, nl := range nlogs {
		nl.mw.Lock()
		if nl.w != nil {
			nl.w.Flush()
		}
		if doExit && nl.file != nil {
			nl.file.Close()
		}
		nl.mw.Unlock()
	}
}

func format1(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChars[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 1); ok {
		if idx := strings.LastIndexByte(fn, '/'); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if !strings.HasSuffix(format, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
