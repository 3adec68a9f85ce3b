package main

import "github.com/OpenTraceLab/OpenTraceProbe/cmd/otprobe/cmd"

func main() {
	cmd.Execute()
}
