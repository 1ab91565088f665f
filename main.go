package main

import (
	"github.com/storewatch/storewatch/cmd"
)

func main() {
	cmd.Execute()
}
