// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !debug

package endpoint

// invalidConfig reports an InvalidConfig condition (a primitive/class
// pairing a service built wrong, or a submit routed to a class with no
// port) by returning err unchanged. See assert_debug.go for the -tags debug
// panic variant.
func invalidConfig(err error) error {
	return err
}
