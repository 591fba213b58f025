//go:build !windows

package discord

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

func ipcPaths() []string {
	dir := "/tmp"
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			dir = v
			break
		}
	}
	paths := make([]string, 0, pipeCount)
	for i := 0; i < pipeCount; i++ {
		paths = append(paths, filepath.Join(dir, fmt.Sprintf("discord-ipc-%d", i)))
	}
	return paths
}

func dialIPC(timeout time.Duration) (net.Conn, error) {
	return dialAny(ipcPaths(), func(p string) (net.Conn, error) {
		return net.DialTimeout("unix", p, timeout)
	})
}
