package main

import "github.com/odyssey-erp/fxsync/cmd/fxsync/cli"

func main() {
	cli.NewRootCommand(cli.DefaultEnv()).Execute()
}
