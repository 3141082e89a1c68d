package main

import "github.com/oddsmith/kalshi-mm/cmd"

func main() {
	cmd.Execute()
}
