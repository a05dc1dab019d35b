// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build debug

package endpoint

// invalidConfig reports an InvalidConfig condition (a primitive/class
// pairing a service built wrong, or a submit routed to a class with no
// port): a programming bug, not a runtime condition. Debug builds (-tags debug)
// panic immediately; release builds (assert_release.go) return err to
// the caller instead.
func invalidConfig(err error) error {
	panic(err)
}
