package server

import (
	"net"
	"os"
	"strconv"
)

// firstActivatedFD is where systemd starts numbering passed sockets
// (0=stdin, 1=stdout, 2=stderr).
const firstActivatedFD = 3

// activatedListener returns the first systemd-activated socket, or nil when
// the process was not socket-activated. autopushd serves a single listener,
// so any additional passed descriptors are ignored.
func activatedListener() net.Listener {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		// Malformed, or the activation targets a different process.
		return nil
	}

	numFDs, err := strconv.Atoi(os.Getenv("LISTEN_FDS"))
	if err != nil || numFDs < 1 {
		return nil
	}

	file := os.NewFile(uintptr(firstActivatedFD), "systemd-socket")
	if file == nil {
		return nil
	}
	listener, err := net.FileListener(file)
	// The listener duplicates the descriptor; the file wrapper is no
	// longer needed either way.
	_ = file.Close()
	if err != nil {
		return nil
	}

	// Strip the activation variables so subprocesses (git) do not inherit
	// them.
	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return listener
}
