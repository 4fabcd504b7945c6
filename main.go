package main

import "github.com/abarwater/aqua-router/cmd"

func main() {
	cmd.Execute()
}
