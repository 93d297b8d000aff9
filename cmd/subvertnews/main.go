package main

import (
	"subvertnews/cmd/cmd"
)

func main() {
	cmd.Execute()
}
