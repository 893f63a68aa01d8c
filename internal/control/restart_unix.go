//go:build unix

package control

import "golang.org/x/sys/unix"

func replaceProcess(argv0 string, argv []string, envv []string) error {
	return unix.Exec(argv0, argv, envv)
}
