package main

import "complaint-portal/internal/cli"

func main() {
	cli.Execute()
}
