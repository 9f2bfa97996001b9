package main

import "github.com/romreviewer/DOWNitUP/cmd"

func main() {
	cmd.Execute()
}
