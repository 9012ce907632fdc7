package main

import "github.com/cagricesur/noobz-voice/internal/cli"

func main() {
	cli.Execute()
}
