package main

import "epserver/cmd"

func main() {
	cmd.Execute()
}
