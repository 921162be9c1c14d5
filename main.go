package main

import "github.com/CraigglesO/mercator-to-s2/cmd"

func main() {
	cmd.Execute()
}
