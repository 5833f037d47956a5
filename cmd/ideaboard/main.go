package main

import "ideaboard/internal/cli"

func main() {
	cli.Execute()
}
