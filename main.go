// main.go
//
// Entry point for the numguess server binary. All wiring lives in the cli
// package; see `numguess --help`.

package main

import "github.com/robalobadob/numguess/internal/cli"

func main() {
	cli.Execute()
}
