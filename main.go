package main

import "github.com/notargets/fluxreg/cmd"

func main() {
	cmd.Execute()
}
