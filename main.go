package main

import "vibestream/cmd"

func main() {
	cmd.Execute()
}
