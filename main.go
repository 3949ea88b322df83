package main

import "github.com/kozaktomas/face-recognizer/cmd"

func main() {
	cmd.Execute()
}
