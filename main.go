package main

import "github.com/shaharia-lab/tradedev/cmd"

func main() {
	cmd.Execute()
}
