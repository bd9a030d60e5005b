package main

import (
	"github.com/frahmantamala/factory-console/cmd"
)

func main() {
	cmd.Execute()
}
