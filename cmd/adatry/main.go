package main

import (
	"os"

	"github.com/adatry/adatry/internal/cli"
)

func main() {
	cli.InitRoot()
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
