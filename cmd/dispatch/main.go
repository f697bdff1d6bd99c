package main

import "github.com/ThreeDotsLabs/dispatch/cmd/dispatch/cmd"

func main() {
	cmd.Execute()
}
