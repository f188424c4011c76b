package main

import "sporespawn/cmd"

func main() {
	cmd.Execute()
}
