package main

import "github.com/facchinm/avrdude/cmd"

func main() {
	cmd.Execute()
}
