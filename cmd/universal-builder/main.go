package main

import "github.com/EthanBar/dolphin/cmd/universal-builder/cmd"

func main() {
	cmd.Execute()
}
