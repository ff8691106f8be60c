package main

import "github.com/wfunc/bombarena/cmd"

func main() {
	cmd.Execute()
}
