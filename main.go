package main

import "packfetch/internal/cli"

func main() {
	cli.Execute()
}
