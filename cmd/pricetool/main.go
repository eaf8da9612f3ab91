package main

import "pricetool/internal/cli"

func main() {
	cli.Execute()
}
