package main

import "github.com/jmehdipour/data-moodboard/cmd"

func main() {
	cmd.Execute()
}
