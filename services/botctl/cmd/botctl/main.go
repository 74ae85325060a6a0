package main

import "github.com/Mutter0815/BotDispatch/services/botctl/cli"

func main() {
	cli.Execute()
}
