package main

import "bookferry/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
