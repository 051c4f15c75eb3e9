// Package xlog provides a simple way of logging with different levels.
//
// Time/Date are not logged by default because the process supervisor
// (systemd, a job scheduler) usually adds them for us. Uses the same
// syslog-style prefixes described here:
// https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package xlog

import (
	"fmt"
	"io"
	"log"
	"os"
)

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
	CritPrefix  string = "<2>[CRITICAL] "
)

var (
	debugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	infoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	warnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	errLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)
	critLog  *log.Logger = log.New(CritWriter, CritPrefix, log.Llongfile)

	debugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	infoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	warnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	errTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
	critTimeLog  *log.Logger = log.New(CritWriter, CritPrefix, log.LstdFlags|log.Llongfile)
)

// Rank is prepended to every log line once Init has been called with a
// non-negative rank, so that output interleaved from many PEs (when run
// under a job launcher that merges stdout) can still be attributed.
var rankPrefix string

// Init configures whether timestamps are emitted and tags subsequent log
// lines with the calling PE's rank, mirroring how a cluster job's stdout
// is usually annotated by the launcher.
func Init(logDate bool, rank int) {
	logDateTime = logDate
	if rank >= 0 {
		rankPrefix = fmt.Sprintf("[pe%d] ", rank)
	}
}

func pick(timeLog, noTimeLog *log.Logger) *log.Logger {
	if logDateTime {
		return timeLog
	}
	return noTimeLog
}

func Debugf(format string, args ...interface{}) {
	pick(debugTimeLog, debugLog).Output(2, rankPrefix+fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	pick(infoTimeLog, infoLog).Output(2, rankPrefix+fmt.Sprintf(format, args...))
}

func Info(msg string) {
	pick(infoTimeLog, infoLog).Output(2, rankPrefix+msg)
}

func Warnf(format string, args ...interface{}) {
	pick(warnTimeLog, warnLog).Output(2, rankPrefix+fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	pick(errTimeLog, errLog).Output(2, rankPrefix+fmt.Sprintf(format, args...))
}

// Critf logs a critical message. It does not itself terminate the process;
// callers implementing the fail-stop failure model call Abortf instead.
func Critf(format string, args ...interface{}) {
	pick(critTimeLog, critLog).Output(2, rankPrefix+fmt.Sprintf(format, args...))
}

// Abortf logs a critical message and terminates the process. Per the
// fail-stop failure model, any PE detecting a protocol or precondition
// violation aborts rather than attempting to recover or restart.
func Abortf(format string, args ...interface{}) {
	Critf(format, args...)
	os.Exit(1)
}
