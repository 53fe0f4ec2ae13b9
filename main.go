package main

import (
	"github.com/BioHazard786/meshcall/cmd"
)

func main() {
	cmd.Execute()
}
