package main

import "github.com/opsrelay/opsrelay/cmd"

func main() {
	cmd.Execute()
}
