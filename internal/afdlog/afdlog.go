// Package afdlog provides the sign-tag-prefixed structured logger used
// by every AFD component. One Logger instance exists per log channel
// (system, receive, transfer, trans_db); each writes lines beginning
// with a three-character sign tag as required by spec section 6.
package afdlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Sign is the three-character tag that must be the first token of
// every log line on the named fifos.
type Sign string

const (
	SignInfo    Sign = "<I>"
	SignWarn    Sign = "<W>"
	SignError   Sign = "<E>"
	SignFatal   Sign = "<F>"
	SignDebug   Sign = "<D>"
	SignConfig  Sign = "<C>"
	SignOffline Sign = "<#>"
)

// Channel names the four log fifos spec section 6 defines.
type Channel string

const (
	ChannelSystem   Channel = "system_log"
	ChannelReceive  Channel = "receive_log"
	ChannelTransfer Channel = "transfer_log"
	ChannelTransDB  Channel = "trans_db_log"
)

// signFormatter implements logrus.Formatter, prefixing every rendered
// line with the sign tag carried in the entry's "sign" field.
type signFormatter struct {
	base logrus.Formatter
}

func (f *signFormatter) Format(e *logrus.Entry) ([]byte, error) {
	sign, _ := e.Data["sign"].(Sign)
	if sign == "" {
		sign = SignInfo
	}
	delete(e.Data, "sign")
	rendered, err := f.base.Format(e)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sign)+1+len(rendered))
	out = append(out, sign...)
	out = append(out, ' ')
	out = append(out, rendered...)
	return out, nil
}

// Logger writes sign-tagged lines for one log channel.
type Logger struct {
	channel Channel
	entry   *logrus.Logger
}

// New builds a Logger for the given channel, writing to w (normally the
// channel's fifo, opened by the caller).
func New(channel Channel, w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&signFormatter{base: &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		DisableQuote:    true,
		QuoteEmptyFields: true,
	}})
	l.SetLevel(logrus.TraceLevel)
	return &Logger{channel: channel, entry: l}
}

// NewStderr is a convenience constructor for tests and CLI tools that
// have no fifo to write to.
func NewStderr(channel Channel) *Logger {
	return New(channel, os.Stderr)
}

func (l *Logger) log(sign Sign, fields logrus.Fields, msg string) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["sign"] = sign
	fields["channel"] = string(l.channel)
	l.entry.WithFields(fields).Info(msg)
}

func (l *Logger) Info(msg string, fields logrus.Fields)    { l.log(SignInfo, fields, msg) }
func (l *Logger) Warn(msg string, fields logrus.Fields)    { l.log(SignWarn, fields, msg) }
func (l *Logger) Error(msg string, fields logrus.Fields)   { l.log(SignError, fields, msg) }
func (l *Logger) Fatal(msg string, fields logrus.Fields)   { l.log(SignFatal, fields, msg) }
func (l *Logger) Debug(msg string, fields logrus.Fields)   { l.log(SignDebug, fields, msg) }
func (l *Logger) Config(msg string, fields logrus.Fields)  { l.log(SignConfig, fields, msg) }
func (l *Logger) Offline(msg string, fields logrus.Fields) { l.log(SignOffline, fields, msg) }
