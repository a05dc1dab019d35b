// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logx is the fabric's ambient structured-logging stack: a
// stumpy-backed logiface.Logger shared by the endpoint and runtime
// packages for decode-error and engine-registration lines. Nothing at layers L0/L1 (region, wait, msgring, mailbox,
// slotpool) logs; those primitives are pure data structures.
package logx

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete event type this package's loggers emit.
type Logger = logiface.Logger[*stumpy.Event]

var defaultLogger = New(os.Stderr)

// New builds a stumpy-backed logger writing to w.
func New(w io.Writer) *Logger {
	return stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(w)))
}

// Default returns the package-level logger used by endpoint.BuildService
// and runtime.New. Call SetDefault before constructing either to
// redirect their log output.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) { defaultLogger = l }
