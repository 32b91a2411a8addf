package main

import "github.com/tanq16/sdm/cmd"

func main() {
	cmd.Execute()
}
