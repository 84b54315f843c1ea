package main

import "github.com/tabq-dev/tabq/cmd"

func main() {
	cmd.Execute()
}
