package main

import "DayPilot/client/pilot-cli/cmd"

func main() {
	cmd.Execute()
}
