package main

import "github.com/markrhq/markr/cmd"

func main() {
	cmd.Execute()
}
