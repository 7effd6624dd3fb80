/*
 * Copyright (c) 2023 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */

// Package apex adapts github.com/apex/log to logger.Logger.
package apex

import (
	"fmt"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"

	"github.com/vmware/vmware-go-checkpointer/logger"
)

type apexLogger struct {
	log log.Interface
}

// NewApexLogger adapts an existing apex logger or entry.
func NewApexLogger(l log.Interface) logger.Logger {
	return &apexLogger{log: l}
}

// NewApexLoggerWithConfig creates an apex logger writing to the configured outputs.
func NewApexLoggerWithConfig(config logger.Configuration) logger.Logger {
	logger.NormalizeConfig(&config)

	w := logger.Writer(config)

	var handler log.Handler = text.New(w)
	if config.ConsoleJSONFormat || (config.EnableFile && !config.EnableConsole && config.FileJSONFormat) {
		handler = json.New(w)
	}

	lvl := config.ConsoleLevel
	if !config.EnableConsole {
		lvl = config.FileLevel
	}
	level, err := log.ParseLevel(lvl)
	if err != nil {
		level = log.InfoLevel
	}

	return &apexLogger{log: &log.Logger{Handler: handler, Level: level}}
}

func (a *apexLogger) Debugf(format string, args ...interface{}) {
	a.log.Debugf(format, args...)
}

func (a *apexLogger) Infof(format string, args ...interface{}) {
	a.log.Infof(format, args...)
}

func (a *apexLogger) Warnf(format string, args ...interface{}) {
	a.log.Warnf(format, args...)
}

func (a *apexLogger) Errorf(format string, args ...interface{}) {
	a.log.Errorf(format, args...)
}

func (a *apexLogger) Fatalf(format string, args ...interface{}) {
	a.log.Fatalf(format, args...)
}

// Panicf logs at error level then panics; apex has no panic level.
func (a *apexLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	a.log.Errorf("%s", msg)
	panic(msg)
}

func (a *apexLogger) WithFields(fields logger.Fields) logger.Logger {
	return &apexLogger{log: a.log.WithFields(log.Fields(fields))}
}
