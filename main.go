package main

import "github.com/vlikhobabin/kaiten-to-bitrix/cmd"

func main() {
	cmd.Execute()
}
