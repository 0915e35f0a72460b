package main

import (
	"github.com/lorawan-station/stationd/cmd/stationd/cmd"
)

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
