package banner

import (
	"fmt"
	"io"
	"runtime"
)

var (
	semver = "unset"
	commit = "unset"
)

const logo = "\x1b[36m" + `
                  _                  _
  ___ _ __   ___ | |_ _ __ __ _  ___| | __
 / __| '_ \ / __|| __| '__/ _` + "`" + ` |/ __| |/ /
| (__| | | | (__ | |_| | | (_| | (__|   <
 \___|_| |_|\___| \__|_|  \__,_|\___|_|\_\
` + "\x1b[0m"

// ANSI 打印启动 banner 与版本信息。
func ANSI(w io.Writer) (int, error) {
	return fmt.Fprintf(w, "%s\nversion: %s\ncommit:  %s\nruntime: %s %s/%s\n\n",
		logo, semver, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Semver 编译期通过 -ldflags 注入的版本号。
func Semver() string { return semver }
