// Package logflags decides which components log and where their output
// goes. Component loggers are logrus entries tagged with a "layer" field.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var bench = false
var store = false
var server = false
var config = false

var logOut io.WriteCloser

var textFormatter = &logrus.TextFormatter{FullTimestamp: true}

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Out = os.Stderr
	if logOut != nil {
		logger.Out = logOut
	}
	logger.Formatter = textFormatter
	logger.Level = logrus.DebugLevel
	if !flag {
		logger.Level = logrus.ErrorLevel
	}
	return logger.WithFields(fields)
}

// BenchLogger returns a logger for the benchmark package.
func BenchLogger() *logrus.Entry {
	return makeLogger(bench, logrus.Fields{"layer": "bench"})
}

// StoreLogger returns a logger for the MongoDB results store.
func StoreLogger() *logrus.Entry {
	return makeLogger(store, logrus.Fields{"layer": "store"})
}

// ServerLogger returns a logger for the HTTP service.
func ServerLogger() *logrus.Entry {
	return makeLogger(server, logrus.Fields{"layer": "server"})
}

// ConfigLogger returns a logger for configuration loading.
func ConfigLogger() *logrus.Entry {
	return makeLogger(config, logrus.Fields{"layer": "config"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the component flags based on the contents of logstr and
// opens logDest, which is either a file path or a file descriptor number.
func Setup(logFlag bool, logstr, logDest string) error {
	if !logFlag && logstr != "" {
		return errLogstrWithoutLog
	}
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "sumbench-logs")
		} else {
			f, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %w", err)
			}
			logOut = f
		}
	}
	if !logFlag {
		return nil
	}
	if logstr == "" {
		logstr = "bench"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(logcmd) {
		case "bench":
			bench = true
		case "store":
			store = true
		case "server":
			server = true
		case "config":
			config = true
		}
	}
	return nil
}

// Close closes the log destination opened by Setup, if any.
func Close() {
	if logOut != nil {
		logOut.Close()
		logOut = nil
	}
}
