//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"
	"time"

	winio "github.com/Microsoft/go-winio"
)

func ipcPaths() []string {
	paths := make([]string, 0, pipeCount)
	for i := 0; i < pipeCount; i++ {
		paths = append(paths, fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i))
	}
	return paths
}

// dialIPC opens the named pipe through winio, whose connections honour
// read and write deadlines.
func dialIPC(timeout time.Duration) (net.Conn, error) {
	return dialAny(ipcPaths(), func(p string) (net.Conn, error) {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return winio.DialPipeContext(ctx, p)
	})
}
