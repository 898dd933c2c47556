package main

import (
	"github.com/veyralabs/fitlens/cmd"
)

func main() {
	cmd.Execute()
}
