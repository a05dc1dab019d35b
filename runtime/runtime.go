// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtime is the cooperative worker runtime: a list of service
// engines, one poll() per engine per tick, no implicit yielding between
// them. It also carries the concrete native harness (NativeChannels)
// that wires one frame slot pool and one event MsgRing together behind
// the scenario package's FabricHandle contract.
package runtime

import "code.hybscloud.com/fabric/internal/logx"

// ServiceEngine is one backend service's drain-and-process loop. Poll
// does one bounded unit of work and reports how much work it did; it
// must never park (the wait/notify shim's wait_for_* calls are reserved
// for callers that choose to sleep outside the runtime, e.g. the
// scenario harness's own drivers).
type ServiceEngine interface {
	Poll() int
	Name() string
}

// WorkerRuntime cooperatively polls a fixed list of service engines, one
// tick at a time.
type WorkerRuntime struct {
	engines []ServiceEngine
	logger  *logx.Logger
}

// New constructs a WorkerRuntime polling engines, in registration order,
// once per Tick. Logging goes through logx.Default(); call
// logx.SetDefault before New to redirect it.
func New(engines ...ServiceEngine) *WorkerRuntime {
	r := &WorkerRuntime{logger: logx.Default()}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// Register appends an engine to the runtime's poll list.
func (r *WorkerRuntime) Register(e ServiceEngine) {
	r.engines = append(r.engines, e)
	r.logger.Debug().Str("engine", e.Name()).Log("runtime: engine registered")
}

// Engines returns the runtime's registered engines, in poll order.
func (r *WorkerRuntime) Engines() []ServiceEngine {
	return append([]ServiceEngine(nil), r.engines...)
}

// Tick polls every registered engine exactly once and returns the sum of
// units of work done.
func (r *WorkerRuntime) Tick() int {
	total := 0
	for _, e := range r.engines {
		total += e.Poll()
	}
	return total
}
