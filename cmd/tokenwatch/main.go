package main

import "github.com/cenetex/cosyworld-sub000/internal/cli"

func main() {
	cli.Execute()
}
