package main

import "github.com/oshokin/alarm-subsystem/cmd/alarm-subsystem/cmd"

func main() {
	cmd.Execute()
}
