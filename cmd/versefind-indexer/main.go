package main

import "github.com/kailas-cloud/versefind/internal/cli"

func main() {
	cli.Execute()
}
