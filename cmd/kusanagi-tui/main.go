package main

import "kusanagi/internal/cli"

func main() {
	cli.Execute()
}
