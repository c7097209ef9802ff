package main

import "github.com/skymesh/skymesh-ground-monitor/cmd/skymesh-ground-monitor/cmd"

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
