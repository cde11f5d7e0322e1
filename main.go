package main

import "github.com/wayfocus/wayfocus/cmd"

func main() {
	cmd.Execute()
}
