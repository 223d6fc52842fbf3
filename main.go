package main

import "github.com/RyanBlaney/beatwizard/cmd"

func main() {
	cmd.Execute()
}
