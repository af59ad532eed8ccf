package main

import "osm-revert/cmd"

func main() {
	cmd.Execute()
}
