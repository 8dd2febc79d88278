package main

import "github.com/hoppxi/backlightd/internal/cmd"

func main() {
	cmd.Execute()
}
