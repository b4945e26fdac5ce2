package main

import "github.com/medibridge/telecall/cmd"

func main() {
	cmd.Execute()
}
