package discord

import (
	"net"

	"github.com/pkg/errors"
)

// pipeCount is how many discord-ipc-N endpoints a running client may use.
const pipeCount = 10

// dialAny tries every IPC endpoint in order and returns the first that opens.
func dialAny(paths []string, open func(string) (net.Conn, error)) (net.Conn, error) {
	var last error = errors.New("no ipc endpoints")
	for _, p := range paths {
		conn, err := open(p)
		if err == nil {
			return conn, nil
		}
		last = err
	}
	return nil, errors.Wrap(last, "discord client not reachable")
}
