// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package runtime

import "testing"

type fakeEngine struct {
	name string
	work []int // Poll() returns one element per call, in order
	next int
}

func (f *fakeEngine) Name() string { return f.name }
func (f *fakeEngine) Poll() int {
	if f.next >= len(f.work) {
		return 0
	}
	n := f.work[f.next]
	f.next++
	return n
}

func TestWorkerRuntimeTicksInRegistrationOrder(t *testing.T) {
	var order []string
	a := &fakeEngine{name: "a", work: []int{1, 1}}
	b := &fakeEngine{name: "b", work: []int{2, 0}}

	rt := New(a, b)
	for _, e := range rt.Engines() {
		order = append(order, e.Name())
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected registration order: %v", order)
	}

	if n := rt.Tick(); n != 3 {
		t.Fatalf("first tick: got %d, want 3", n)
	}
	if n := rt.Tick(); n != 1 {
		t.Fatalf("second tick: got %d, want 1", n)
	}
}

func TestWorkerRuntimeRegisterAppends(t *testing.T) {
	rt := New()
	rt.Register(&fakeEngine{name: "only", work: []int{5}})
	if n := rt.Tick(); n != 5 {
		t.Fatalf("got %d, want 5", n)
	}
}
