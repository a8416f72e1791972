package main

import "github.com/ZanzyTHEbar/runway/internal/cli"

func main() {
	cli.Execute()
}
