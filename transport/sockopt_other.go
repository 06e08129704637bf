//go:build !linux

// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package transport

import "net"

// setSockopts is a no-op outside Linux; net's defaults apply.
func setSockopts(net.Conn, Config) error {
	return nil
}
